package store

import (
	"github.com/pmezard/go-difflib/difflib"
)

// UnifiedDiff renders a 3-line-context unified diff between two
// normalized texts, matching the external interface's diff format.
// It returns "" when the texts are identical.
func UnifiedDiff(oldText, newText string) (string, error) {
	if oldText == newText {
		return "", nil
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldText),
		B:        difflib.SplitLines(newText),
		FromFile: "previous",
		ToFile:   "current",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
