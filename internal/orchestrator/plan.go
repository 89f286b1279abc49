package orchestrator

import (
	"context"
	"fmt"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/dedup"
	"github.com/abhisek/qbankgen/internal/itemgen"
	"github.com/abhisek/qbankgen/internal/quota"
)

// plan resolves the quota, reads existing counts and loads one duplicate
// guard per sub-skill. History is read here, once, and nowhere else.
func (o *Orchestrator) plan(ctx context.Context, req SectionRequest) (*run, error) {
	r, err := o.newRun(req)
	if err != nil {
		return nil, err
	}
	o.emit(r)

	for _, c := range quota.Cells(r.quota, []bank.TestMode{req.Mode}, req.Strategy) {
		var existing int
		err := o.storeCall(ctx, func(ctx context.Context) error {
			var err error
			existing, err = o.store.CountExisting(ctx, c.CellKey)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("count existing %s: %w", c.CellKey, err)
		}
		cr := &CellResult{
			Cell:      c.CellKey,
			Target:    c.Target,
			Existing:  existing,
			Remaining: max(0, c.Target-existing),
		}
		r.cells = append(r.cells, cr)
		r.byKey[c.CellKey] = cr
		r.progress.Deficit += cr.Remaining
	}

	for _, t := range r.quota.SubSkills {
		scope := bank.HistoryScope{
			TestType: req.TestType,
			Section:  req.Section,
			SubSkill: t.SubSkill,
			Mode:     req.Mode,
			AllModes: req.Options.CrossModeDiversity,
		}
		var texts []string
		err := o.storeCall(ctx, func(ctx context.Context) error {
			var err error
			texts, err = itemgen.LoadHistory(ctx, o.store, scope, 0)
			return err
		})
		if err != nil {
			return nil, err
		}
		r.guards[t.SubSkill] = dedup.NewGuard(scope.String(), texts)
	}
	return r, nil
}

// storeCall runs a store read under the retry policy, each attempt with
// its own timeout.
func (o *Orchestrator) storeCall(ctx context.Context, fn func(context.Context) error) error {
	return o.config.Generator.Retry.Do(ctx, func(int) error {
		callCtx := ctx
		if t := o.config.Generator.StoreTimeout; t > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, t)
			defer cancel()
		}
		return fn(callCtx)
	})
}
