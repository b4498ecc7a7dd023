package tapping

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/seringal/tapping-engine/farm"
)

// maxParallelLookups bounds concurrent repository queries per batch.
const maxParallelLookups = 8

// CheckEligibilityForMany resolves every section independently and joins the
// results. Each entry equals what CheckEligibility would return alone.
//
// The batch is fail-fast: arguments are validated before any query, and the
// first lookup failure cancels the remaining lookups and is returned with a
// nil map. Duplicate section codes are looked up once.
func (e *Engine) CheckEligibilityForMany(ctx context.Context, worker farm.WorkerID, sections []farm.SectionCode, asOf farm.Date) (map[farm.SectionCode]Result, error) {
	unique := make([]farm.SectionCode, 0, len(sections))
	seen := make(map[farm.SectionCode]bool, len(sections))
	for _, s := range sections {
		if err := validate(worker, s); err != nil {
			return nil, err
		}
		if !seen[s] {
			seen[s] = true
			unique = append(unique, s)
		}
	}

	results := make([]Result, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for i, section := range unique {
		g.Go(func() error {
			r, err := e.check(gctx, worker, section, asOf)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[farm.SectionCode]Result, len(unique))
	for i, section := range unique {
		out[section] = results[i]
	}
	return out, nil
}
