package embargo

import (
	"log/slog"
	"sort"

	"github.com/meertime/dataportal/internal/telemetry"
)

// Selection is the result of most-recent-accessible selection.
//
// Found reports whether Artifact is set. ExistsButInaccessible is true when nothing
// was selected although at least one non-excluded candidate existed, so callers can
// tell "nothing exists" apart from "something exists that you cannot see".
type Selection[T Artifact] struct {
	Artifact              T
	Found                 bool
	Embargoed             bool
	ExistsButInaccessible bool
}

// SelectMostRecent returns the newest candidate p may access.
//
// Candidates are ordered newest first by embargo reference timestamp. The sort is
// stable, so candidates with equal timestamps keep the order they were supplied in
// (the repositories supply id DESC). Candidates matching exclude are skipped without
// counting as existing. A candidate whose embargo cannot be evaluated is logged and
// treated as existing but inaccessible, and selection moves on to older candidates.
func SelectMostRecent[T Artifact](a *Accessor, p *Principal, candidates []T, exclude func(T) bool) Selection[T] {
	ordered := make([]T, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EmbargoSubject().Reference.After(ordered[j].EmbargoSubject().Reference)
	})

	var sel Selection[T]
	sawCandidate := false
	for _, c := range ordered {
		if exclude != nil && exclude(c) {
			continue
		}
		sawCandidate = true

		d, err := a.Decide(p, c)
		if err != nil {
			subject := c.EmbargoSubject()
			slog.Warn("skipping candidate with invalid embargo data", "artifact", subject.Kind, "id", subject.ID, "error", err)
			telemetry.SelectorSkippedTotal.WithLabelValues(subject.Kind).Inc()
			continue
		}
		if d.Allowed {
			sel.Artifact = c
			sel.Found = true
			sel.Embargoed = d.Embargoed
			return sel
		}
	}

	sel.ExistsButInaccessible = sawCandidate
	return sel
}
