package agent

import (
	"regexp"
	"strings"

	"github.com/gbos-io/gbos/internal/template"
)

// taskHeaderTemplate and repoFooterTemplate are the flat, loop-free
// sections of the prompt that fit the template package's {{variable}}
// substitution; the list-shaped sections (acceptance criteria, target
// files) are built directly since RenderPrompt has no loop construct.
const taskHeaderTemplate = "# Task\n\n{{title}}{{body}}\n\n"

const repoFooterTemplate = "## Repository\n\n{{application}}{{repository}}{{branch}}"

// DefaultHeuristics implements the shared fallback regex sets that every
// vendor adapter layers its own patterns on top of. Grounded on the
// teacher's claudecode.Adapter.ParseOutput, which scans accumulated text
// with a chain of regexp.MustCompile patterns rather than parsing a
// structured transcript. Exported so vendor adapters in sibling packages
// can embed/call it.
type DefaultHeuristics struct{}

var (
	defaultCompletionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\btask\s+complete`),
		regexp.MustCompile(`(?i)\ball\s+(?:tests?\s+)?passed\b`),
		regexp.MustCompile(`(?i)\bdone\.?\s*$`),
		regexp.MustCompile(`(?i)\bfinished\b.*\bimplementation\b`),
	}
	defaultWaitingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bwaiting for (?:your |user )?(?:input|confirmation|response)\b`),
		regexp.MustCompile(`(?i)\b(?:y/n|yes/no)\s*[?:]\s*$`),
		regexp.MustCompile(`(?i)\bplease (?:confirm|provide|clarify)\b`),
	}
	defaultErrorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bfatal:?\s`),
		regexp.MustCompile(`(?i)\bpanic:\s`),
		regexp.MustCompile(`(?i)\bunrecoverable error\b`),
		regexp.MustCompile(`(?i)\bauthentication failed\b`),
	}

	modifiedFilePattern = regexp.MustCompile(`(?i)(?:modified|updated|wrote|created|edited)[:\s]+([^\s,]+\.\w+)`)
	testRunPattern      = regexp.MustCompile(`(?i)(?:running|ran)\s+(?:test|spec)s?[:\s]+([^\n]+)`)
	errorLinePattern    = regexp.MustCompile(`(?im)^(?:error|fatal)[:\s]+(.+)$`)
)

func (DefaultHeuristics) DetectCompletion(output string) bool {
	return matchesAny(defaultCompletionPatterns, output)
}

func (DefaultHeuristics) DetectWaitingForInput(output string) bool {
	return matchesAny(defaultWaitingPatterns, output)
}

func (DefaultHeuristics) DetectError(output string) bool {
	return matchesAny(defaultErrorPatterns, output)
}

func (DefaultHeuristics) ParseOutput(output string) ParsedOutput {
	result := ParsedOutput{Raw: output}

	for _, m := range modifiedFilePattern.FindAllStringSubmatch(output, -1) {
		result.FilesModified = appendUnique(result.FilesModified, m[1])
	}
	for _, m := range testRunPattern.FindAllStringSubmatch(output, -1) {
		result.TestsRun = appendUnique(result.TestsRun, strings.TrimSpace(m[1]))
	}
	for _, m := range errorLinePattern.FindAllStringSubmatch(output, -1) {
		result.Errors = appendUnique(result.Errors, strings.TrimSpace(m[1]))
	}
	return result
}

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

// BuildPromptSections renders the shared body of every adapter's prompt:
// the task, acceptance criteria, target files, a testing section (with
// Playwright instructions when ctx.CloudRunURL is set), and a completion
// section that forbids the agent from committing or pushing on its own
// (the orchestrator's commit_push stage owns that).
func BuildPromptSections(task Task, ctx PromptContext) string {
	var sb strings.Builder

	title := ""
	if task.Title != "" {
		title = task.Title + "\n\n"
	}
	sb.WriteString(template.RenderPrompt(taskHeaderTemplate, map[string]string{
		"title": title,
		"body":  task.Body,
	}))

	if len(task.AcceptanceCriteria) > 0 {
		sb.WriteString("## Acceptance Criteria\n\n")
		for _, c := range task.AcceptanceCriteria {
			sb.WriteString("- ")
			sb.WriteString(c)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(task.TargetFiles) > 0 {
		sb.WriteString("## Target Files\n\n")
		for _, f := range task.TargetFiles {
			sb.WriteString("- ")
			sb.WriteString(f)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Testing\n\n")
	if ctx.CloudRunURL != "" {
		sb.WriteString("A preview deployment is available at " + ctx.CloudRunURL + ".\n")
		sb.WriteString("Use Playwright to exercise the relevant flows against this URL before concluding your work.\n\n")
	} else {
		sb.WriteString("Run the project's existing test suite and confirm it passes before concluding your work.\n\n")
	}

	sb.WriteString("## Completion\n\n")
	sb.WriteString("Do not commit or push your changes. Leave the working tree as-is when you are done; ")
	sb.WriteString("committing, pushing, and opening a merge request are handled separately after you finish.\n\n")

	application, repository, branch := "", "", ""
	if ctx.AppName != "" {
		application = "Application: " + ctx.AppName + "\n"
	}
	if ctx.RepoURL != "" {
		repository = "Repository: " + ctx.RepoURL + "\n"
	}
	if ctx.Branch != "" {
		branch = "Branch: " + ctx.Branch + "\n"
	}
	sb.WriteString(template.RenderPrompt(repoFooterTemplate, map[string]string{
		"application": application,
		"repository":  repository,
		"branch":      branch,
	}))

	return sb.String()
}
