package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/dorkrecon/internal/store"
)

// ErrDiffTargetMismatch is returned when the two sessions scanned different
// targets and a finding-level comparison would be meaningless.
var ErrDiffTargetMismatch = errors.New("sessions target different hosts")

// DiffPart is one run of text in a snippet comparison.
type DiffPart struct {
	Op   string `json:"op"` // "equal", "insert" or "delete"
	Text string `json:"text"`
}

// SnippetChange describes a finding present in both sessions whose snippet
// text changed between them.
type SnippetChange struct {
	ResultURL string     `json:"result_url"`
	Platform  string     `json:"platform"`
	Category  string     `json:"category"`
	Parts     []DiffPart `json:"parts"`
}

// SessionDiff compares two runs over the same target. Findings are keyed by
// result URL.
type SessionDiff struct {
	BaseID  string          `json:"base_id"`
	HeadID  string          `json:"head_id"`
	Added   []store.Result  `json:"added"`
	Removed []store.Result  `json:"removed"`
	Changed []SnippetChange `json:"changed"`
}

// DiffSessions reports which findings appeared, disappeared or changed
// between a base session and a later head session. Both sessions must exist
// and share a target.
func (o *Orchestrator) DiffSessions(ctx context.Context, baseID, headID string) (*SessionDiff, error) {
	base, err := o.store.GetSession(ctx, baseID)
	if err != nil {
		return nil, fmt.Errorf("loading base session: %w", err)
	}
	head, err := o.store.GetSession(ctx, headID)
	if err != nil {
		return nil, fmt.Errorf("loading head session: %w", err)
	}
	if base.Target != head.Target {
		return nil, ErrDiffTargetMismatch
	}

	baseResults, err := o.store.ListResults(ctx, baseID)
	if err != nil {
		return nil, err
	}
	headResults, err := o.store.ListResults(ctx, headID)
	if err != nil {
		return nil, err
	}

	baseByURL := make(map[string]store.Result, len(baseResults))
	for _, r := range baseResults {
		baseByURL[r.ResultURL] = r
	}

	dmp := diffmatchpatch.New()
	diff := &SessionDiff{BaseID: baseID, HeadID: headID}
	seen := make(map[string]bool, len(headResults))
	for _, r := range headResults {
		seen[r.ResultURL] = true
		old, ok := baseByURL[r.ResultURL]
		if !ok {
			diff.Added = append(diff.Added, r)
			continue
		}
		if old.Snippet == r.Snippet {
			continue
		}
		diffs := dmp.DiffMain(old.Snippet, r.Snippet, false)
		diffs = dmp.DiffCleanupSemantic(diffs)
		change := SnippetChange{
			ResultURL: r.ResultURL,
			Platform:  r.Platform,
			Category:  r.Category,
		}
		for _, d := range diffs {
			change.Parts = append(change.Parts, DiffPart{Op: opName(d.Type), Text: d.Text})
		}
		diff.Changed = append(diff.Changed, change)
	}
	for _, r := range baseResults {
		if !seen[r.ResultURL] {
			diff.Removed = append(diff.Removed, r)
		}
	}
	return diff, nil
}

func opName(op diffmatchpatch.Operation) string {
	switch op {
	case diffmatchpatch.DiffInsert:
		return "insert"
	case diffmatchpatch.DiffDelete:
		return "delete"
	default:
		return "equal"
	}
}
