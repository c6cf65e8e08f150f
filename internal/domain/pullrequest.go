// Package domain contains the core data structures shared by the gateway,
// the analyzer and the task layer.
package domain

import "time"

// PRState is the refined state of a pull request, derived from the raw
// open/closed flag reported by GitHub plus the draft marker and merge
// timestamp.
type PRState string

const (
	StateOpen   PRState = "open"
	StateMerged PRState = "merged"
	StateClosed PRState = "closed"
	StateDraft  PRState = "draft"
)

// DerivePRState maps the raw GitHub fields to a PRState. A draft PR is
// always draft, regardless of its open/closed flag. A closed PR counts as
// merged only when a merge timestamp is present. The same rule is applied
// at ingestion and at every later re-derivation.
func DerivePRState(draft bool, sourceState string, mergedAt *time.Time) PRState {
	switch {
	case draft:
		return StateDraft
	case sourceState == "open":
		return StateOpen
	case sourceState == "closed" && mergedAt != nil:
		return StateMerged
	case sourceState == "closed":
		return StateClosed
	default:
		return PRState(sourceState)
	}
}

// PullRequest is the raw unit of input for the analyzer. It is immutable
// once fetched; the analyzer never mutates records.
type PullRequest struct {
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	Author       string     `json:"author"`
	Repository   string     `json:"repository"`
	State        PRState    `json:"state"`
	CreatedAt    time.Time  `json:"created_at"`
	MergedAt     *time.Time `json:"merged_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changed_files"`
	Commits      int        `json:"commits"`
	URL          string     `json:"url"`
}
