package timeblock

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Coalesce folds every non-recurring candidate that overlaps or touches w,
// directly or through another absorbed candidate, into one envelope. It
// returns the envelope and the absorbed blocks ordered by start.
func Coalesce(w Window, candidates []*TimeBlock) (Window, []*TimeBlock) {
	env := w
	taken := make(map[uuid.UUID]bool, len(candidates))
	var absorbed []*TimeBlock

	for changed := true; changed; {
		changed = false
		for _, b := range candidates {
			if b.IsRecurring || taken[b.ID] {
				continue
			}
			if !env.Touches(b.Window()) {
				continue
			}
			taken[b.ID] = true
			absorbed = append(absorbed, b)
			if b.StartDateTime.Before(env.Start) {
				env.Start = b.StartDateTime
			}
			if b.EndDateTime.After(env.End) {
				env.End = b.EndDateTime
			}
			changed = true
		}
	}

	sort.SliceStable(absorbed, func(i, j int) bool {
		return absorbed[i].StartDateTime.Before(absorbed[j].StartDateTime)
	})
	return env, absorbed
}

// mergeNotes joins the distinct non-empty notes of the new block and the
// absorbed ones with "; ".
func mergeNotes(notes *string, absorbed []*TimeBlock) *string {
	var parts []string
	seen := make(map[string]bool)
	add := func(n *string) {
		if n == nil {
			return
		}
		s := strings.TrimSpace(*n)
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		parts = append(parts, s)
	}
	add(notes)
	for _, b := range absorbed {
		add(b.Notes)
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, "; ")
	return &joined
}
