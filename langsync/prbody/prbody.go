package prbody

import (
	_ "embed"
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	startTag = "{{"
	endTag   = "}}"
)

// noConflicts replaces the conflict section when the
// merge left no unmerged paths.
const noConflicts = "No conflicts were found."

var (
	//go:embed templates/title.md
	titleText string
	//go:embed templates/body.md
	bodyText string
	//go:embed templates/conflicts.md
	conflictsText string
	//go:embed templates/checklist.md
	checklistText string
)

var (
	titleTpl     = fasttemplate.New(titleText, startTag, endTag)
	bodyTpl      = fasttemplate.New(bodyText, startTag, endTag)
	conflictsTpl = fasttemplate.New(conflictsText, startTag, endTag)
	checklistTpl = fasttemplate.New(checklistText, startTag, endTag)
)

// Data holds the values substituted into the pull
// request templates.
type Data struct {
	// Org owns the repositories.
	Org string
	// MainRepo is the source repository name
	// (e.g. "en.javascript.info").
	MainRepo string
	// WebURL is the hosting site root
	// (e.g. "https://github.com").
	WebURL string
	// PrimaryBranch is the translated repository's
	// main branch.
	PrimaryBranch string
	// UpstreamBranch is the source repository branch.
	UpstreamBranch string
	// ShortHash identifies the upstream commit.
	ShortHash string
	// ConflictFiles lists unmerged paths in the order
	// they appear in the checklist.
	ConflictFiles []string
}

// Title renders the pull request title.
func Title(shortHash string) string {
	return titleTpl.ExecuteString(map[string]any{
		"short_hash": shortHash,
	})
}

// Body renders the pull request body. The conflict
// checklist is included when d.ConflictFiles is not
// empty.
func Body(d Data) string {
	conflicts := noConflicts
	if len(d.ConflictFiles) > 0 {
		conflicts = conflictsTpl.ExecuteString(map[string]any{
			"files": checklist(d),
		})
	}

	return bodyTpl.ExecuteString(map[string]any{
		"org":             d.Org,
		"main_repo":       d.MainRepo,
		"web_url":         d.WebURL,
		"primary_branch":  d.PrimaryBranch,
		"upstream_branch": d.UpstreamBranch,
		"short_hash":      d.ShortHash,
		"conflicts":       conflicts,
	})
}

// ChecklistLine renders the checklist entry for one
// conflicting file. Each entry links to the file's
// history in the source repository.
func ChecklistLine(d Data, file string) string {
	return checklistTpl.ExecuteString(map[string]any{
		"file":            file,
		"org":             d.Org,
		"main_repo":       d.MainRepo,
		"upstream_branch": d.UpstreamBranch,
	})
}

func checklist(d Data) string {
	lines := make([]string, 0, len(d.ConflictFiles))
	for _, f := range d.ConflictFiles {
		lines = append(lines, ChecklistLine(d, f))
	}

	return strings.Join(lines, "\n")
}
