package graph

import "github.com/tagpipe-io/tagpipe/internal/models"

// WouldCycle reports whether the candidate function, added to (or replacing
// its previous version among) the existing functions, makes the tag-flow
// graph cyclic. A function already in existing with the candidate's id is
// excluded so updates are checked against their replacement, not their old
// declaration.
func WouldCycle(existing []models.Function, candidate *models.Function) bool {
	g := New()
	for _, fn := range existing {
		if fn.ID == candidate.ID {
			continue
		}
		g.AddEdges(fn.InputTagIDs, fn.OutputTagIDs)
	}
	g.AddEdges(candidate.InputTagIDs, candidate.OutputTagIDs)
	return g.HasCycle()
}
