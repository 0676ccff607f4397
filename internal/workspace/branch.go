package workspace

import (
	"regexp"
	"strings"
)

const maxSlugLen = 30

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// BranchName builds the deterministic task branch name task/<key>-<slug>,
// lower-cased, with runs of non-alphanumeric characters in the title
// collapsed to a single dash and the slug truncated to maxSlugLen.
func BranchName(taskKeyOrID, title string) string {
	slug := slugify(title)
	if slug == "" {
		return "task/" + taskKeyOrID
	}
	return "task/" + taskKeyOrID + "-" + slug
}

func slugify(s string) string {
	lower := strings.ToLower(s)
	dashed := nonAlphanumeric.ReplaceAllString(lower, "-")
	dashed = strings.Trim(dashed, "-")
	if len(dashed) > maxSlugLen {
		dashed = dashed[:maxSlugLen]
		dashed = strings.TrimRight(dashed, "-")
	}
	return dashed
}
