// Package verify detects a project's toolchain and runs its quality
// gates: linting, formatting, type-checking, unit tests, and (when a
// cloud run URL and Playwright are configured) end-to-end tests. The
// "probe the tree, prefer a declared script, fall back to invoking the
// tool directly" pattern follows the teacher's own tooling-probe style
// in internal/workspace, generalized from a single npm-install check
// into a full stage pipeline.
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ProjectType identifies the toolchain a directory uses.
type ProjectType string

const (
	ProjectNode    ProjectType = "node"
	ProjectPython  ProjectType = "python"
	ProjectUnknown ProjectType = "unknown"
)

const (
	quickStageTimeout = 60 * time.Second
	testStageTimeout  = 10 * time.Minute
)

// Stats is a best-effort summary parsed from a stage's output.
type Stats struct {
	Passed int `json:"passed,omitempty"`
	Failed int `json:"failed,omitempty"`
	Total  int `json:"total,omitempty"`
}

// StageResult is the outcome of a single verification stage.
type StageResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Output  string `json:"output"`
	Command string `json:"command"`
	Stats   *Stats `json:"stats,omitempty"`
}

// Report is the result of a full verification run.
type Report struct {
	ProjectType ProjectType   `json:"project_type"`
	Stages      []StageResult `json:"stages"`
	Passed      bool          `json:"passed"`
	Summary     string        `json:"summary"`
}

// Options configures a verification run.
type Options struct {
	Dir         string
	CloudRunURL string
	Env         []string
}

// DetectProjectType inspects dir for marker files.
func DetectProjectType(dir string) ProjectType {
	if exists(filepath.Join(dir, "package.json")) {
		return ProjectNode
	}
	if exists(filepath.Join(dir, "pyproject.toml")) || exists(filepath.Join(dir, "requirements.txt")) {
		return ProjectPython
	}
	return ProjectUnknown
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// packageJSON is the subset of package.json fields verification needs.
type packageJSON struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func readPackageJSON(dir string) (*packageJSON, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, err
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func (p *packageJSON) hasDep(name string) bool {
	if p == nil {
		return false
	}
	if _, ok := p.Dependencies[name]; ok {
		return true
	}
	_, ok := p.DevDependencies[name]
	return ok
}

func (p *packageJSON) hasScript(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Scripts[name]
	return ok
}

// Run executes the full verification pipeline and computes the overall
// verdict.
func Run(ctx context.Context, opts Options) Report {
	projectType := DetectProjectType(opts.Dir)
	pkg, _ := readPackageJSON(opts.Dir)

	report := Report{ProjectType: projectType}
	report.Stages = append(report.Stages, lintStage(ctx, opts, projectType, pkg))
	report.Stages = append(report.Stages, formatStage(ctx, opts, projectType, pkg))
	report.Stages = append(report.Stages, typeCheckStage(ctx, opts, projectType, pkg))
	report.Stages = append(report.Stages, unitTestStage(ctx, opts, projectType, pkg))
	if opts.CloudRunURL != "" && pkg.hasDep("@playwright/test") {
		report.Stages = append(report.Stages, e2eStage(ctx, opts))
	}

	report.Passed, report.Summary = computeVerdict(report.Stages)
	return report
}

// computeVerdict applies the critical/optional split: unit_tests is
// critical, everything else is optional and only counted for the summary.
func computeVerdict(stages []StageResult) (bool, string) {
	passed := true
	optionalPassed := 0
	optionalTotal := 0
	for _, s := range stages {
		if s.Name == "unit_tests" {
			if !s.Passed {
				passed = false
			}
			continue
		}
		optionalTotal++
		if s.Passed {
			optionalPassed++
		}
	}
	summary := strconv.Itoa(optionalPassed) + "/" + strconv.Itoa(optionalTotal) + " optional stages passed"
	return passed, summary
}

func runCommand(ctx context.Context, opts Options, timeout time.Duration, name string, args ...string) StageResult {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()

	return StageResult{
		Passed:  err == nil,
		Output:  out.String(),
		Command: strings.TrimSpace(name + " " + strings.Join(args, " ")),
	}
}

func skipped(stage, message string) StageResult {
	return StageResult{Name: stage, Passed: true, Output: message}
}

func lintStage(ctx context.Context, opts Options, pt ProjectType, pkg *packageJSON) StageResult {
	var res StageResult
	switch pt {
	case ProjectNode:
		if pkg.hasScript("lint") {
			res = runCommand(ctx, opts, quickStageTimeout, "npm", "run", "lint")
		} else if hasExecutable("npx") {
			res = runCommand(ctx, opts, quickStageTimeout, "npx", "eslint", ".")
		} else {
			res = skipped("", "No linting configured")
		}
	case ProjectPython:
		if hasExecutable("flake8") {
			res = runCommand(ctx, opts, quickStageTimeout, "flake8", ".")
		} else if hasExecutable("pylint") {
			res = runCommand(ctx, opts, quickStageTimeout, "pylint", ".")
		} else {
			res = skipped("", "No linting configured")
		}
	default:
		res = skipped("", "No linting configured")
	}
	res.Name = "linting"
	return res
}

func formatStage(ctx context.Context, opts Options, pt ProjectType, pkg *packageJSON) StageResult {
	var res StageResult
	switch pt {
	case ProjectNode:
		if pkg.hasScript("format") {
			res = runCommand(ctx, opts, quickStageTimeout, "npm", "run", "format", "--", "--check")
		} else if hasExecutable("npx") {
			res = runCommand(ctx, opts, quickStageTimeout, "npx", "prettier", "--check", ".")
		} else {
			res = skipped("", "No formatting configured")
		}
	case ProjectPython:
		if hasExecutable("black") {
			res = runCommand(ctx, opts, quickStageTimeout, "black", "--check", ".")
		} else if hasExecutable("autopep8") {
			res = runCommand(ctx, opts, quickStageTimeout, "autopep8", "--diff", ".")
		} else {
			res = skipped("", "No formatting configured")
		}
	default:
		res = skipped("", "No formatting configured")
	}
	res.Name = "formatting"
	return res
}

func typeCheckStage(ctx context.Context, opts Options, pt ProjectType, pkg *packageJSON) StageResult {
	var res StageResult
	switch pt {
	case ProjectNode:
		if pkg.hasDep("typescript") {
			res = runCommand(ctx, opts, quickStageTimeout, "npx", "tsc", "--noEmit")
		} else {
			res = skipped("", "No type checking configured")
		}
	case ProjectPython:
		if hasExecutable("mypy") {
			res = runCommand(ctx, opts, quickStageTimeout, "mypy", ".")
		} else {
			res = skipped("", "No type checking configured")
		}
	default:
		res = skipped("", "No type checking configured")
	}
	res.Name = "type_check"
	return res
}

func unitTestStage(ctx context.Context, opts Options, pt ProjectType, pkg *packageJSON) StageResult {
	env := append(append([]string{}, opts.Env...), "CI=1")
	runnerOpts := opts
	runnerOpts.Env = env

	var res StageResult
	switch pt {
	case ProjectNode:
		if pkg.hasScript("test") {
			res = runCommand(ctx, runnerOpts, testStageTimeout, "npm", "test")
		} else if pkg.hasDep("vitest") {
			res = runCommand(ctx, runnerOpts, testStageTimeout, "npx", "vitest", "run")
		} else if pkg.hasDep("jest") {
			res = runCommand(ctx, runnerOpts, testStageTimeout, "npx", "jest")
		} else if pkg.hasDep("mocha") {
			res = runCommand(ctx, runnerOpts, testStageTimeout, "npx", "mocha")
		} else {
			res = skipped("", "No unit tests configured")
		}
		res.Stats = parseJestStats(res.Output)
	case ProjectPython:
		res = runCommand(ctx, runnerOpts, testStageTimeout, "pytest")
		res.Stats = parsePytestStats(res.Output)
	default:
		res = skipped("", "No unit tests configured")
	}
	res.Name = "unit_tests"
	return res
}

func e2eStage(ctx context.Context, opts Options) StageResult {
	env := append(append([]string{}, opts.Env...),
		"BASE_URL="+opts.CloudRunURL,
		"PLAYWRIGHT_BASE_URL="+opts.CloudRunURL,
	)
	runnerOpts := opts
	runnerOpts.Env = env
	res := runCommand(ctx, runnerOpts, testStageTimeout, "npx", "playwright", "test")
	res.Name = "e2e_tests"
	res.Stats = parsePlaywrightStats(res.Output)
	return res
}

func hasExecutable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

var (
	jestSummaryPattern       = regexp.MustCompile(`Tests:\s+(?:(\d+) failed, )?(?:(\d+) skipped, )?(\d+) passed, (\d+) total`)
	pytestSummaryPattern     = regexp.MustCompile(`(\d+) passed(?:, (\d+) failed)?`)
	playwrightSummaryPattern = regexp.MustCompile(`(\d+) passed(?:.*?(\d+) failed)?`)
)

func parseJestStats(output string) *Stats {
	m := jestSummaryPattern.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	failed, _ := strconv.Atoi(m[1])
	passed, _ := strconv.Atoi(m[3])
	total, _ := strconv.Atoi(m[4])
	return &Stats{Passed: passed, Failed: failed, Total: total}
}

func parsePytestStats(output string) *Stats {
	m := pytestSummaryPattern.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	passed, _ := strconv.Atoi(m[1])
	failed, _ := strconv.Atoi(m[2])
	return &Stats{Passed: passed, Failed: failed, Total: passed + failed}
}

func parsePlaywrightStats(output string) *Stats {
	m := playwrightSummaryPattern.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	passed, _ := strconv.Atoi(m[1])
	failed, _ := strconv.Atoi(m[2])
	return &Stats{Passed: passed, Failed: failed, Total: passed + failed}
}

// PostProcess attempts best-effort auto-fixes before verification runs.
// Errors are recorded in the returned output but never returned, since a
// failed auto-fix attempt must not fail the caller's stage.
func PostProcess(ctx context.Context, opts Options) string {
	pt := DetectProjectType(opts.Dir)
	pkg, _ := readPackageJSON(opts.Dir)

	var out strings.Builder
	record := func(label string, res StageResult) {
		out.WriteString(label + ":\n" + res.Output + "\n")
	}

	switch pt {
	case ProjectNode:
		if pkg.hasScript("lint:fix") {
			record("lint:fix", runCommand(ctx, opts, quickStageTimeout, "npm", "run", "lint:fix"))
		} else if hasExecutable("npx") {
			record("eslint --fix", runCommand(ctx, opts, quickStageTimeout, "npx", "eslint", "--fix", "."))
		}
		if hasExecutable("npx") {
			record("prettier --write", runCommand(ctx, opts, quickStageTimeout, "npx", "prettier", "--write", "."))
		}
	case ProjectPython:
		if hasExecutable("black") {
			record("black", runCommand(ctx, opts, quickStageTimeout, "black", "."))
		}
	}
	return out.String()
}
