package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/itemgen"
	"github.com/abhisek/qbankgen/internal/quota"
)

// ProductRequest asks for every section of a product to be filled.
type ProductRequest struct {
	TestType string
	Modes    []bank.TestMode // empty means every mode of the product
	Sections []string        // empty means every section

	Strategy      quota.DifficultyStrategy
	Options       itemgen.Options
	FailurePolicy FailurePolicy

	// Progress is called from several goroutines.
	Progress func(Progress)
}

// ProductResult collects the section results in catalog order, mode by
// mode within a section.
type ProductResult struct {
	TestType  string
	Sections  []*SectionResult
	Success   bool
	Generated int
	Failed    int
	CostUSD   float64
	Elapsed   time.Duration
}

// GenerateProduct runs the product's sections concurrently, at most
// Config.Concurrency at a time. Modes of one section run one after another
// so that cross-mode history stays consistent.
func (o *Orchestrator) GenerateProduct(ctx context.Context, req ProductRequest) (*ProductResult, error) {
	start := time.Now()
	product, err := o.catalog.Product(req.TestType)
	if err != nil {
		return nil, err
	}
	modes := req.Modes
	if len(modes) == 0 {
		modes = product.Modes
	}

	if len(product.Sections) == 0 {
		return nil, fmt.Errorf("product %s defines no sections: %w", req.TestType, &bank.ErrUnknownSection{TestType: req.TestType})
	}
	for _, name := range req.Sections {
		if !slices.ContainsFunc(product.Sections, func(s blueprint.Section) bool { return s.Name == name }) {
			return nil, &bank.ErrUnknownSection{TestType: req.TestType, Section: name}
		}
	}
	var sections []string
	for _, s := range product.Sections {
		if len(req.Sections) == 0 || slices.Contains(req.Sections, s.Name) {
			sections = append(sections, s.Name)
		}
	}

	results := make([][]*SectionResult, len(sections))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.Concurrency)
	for i, name := range sections {
		g.Go(func() error {
			for _, mode := range modes {
				if gctx.Err() != nil {
					return nil
				}
				res, err := o.GenerateSection(gctx, SectionRequest{
					TestType:      req.TestType,
					Section:       name,
					Mode:          mode,
					Strategy:      req.Strategy,
					Options:       req.Options,
					FailurePolicy: req.FailurePolicy,
					Progress:      req.Progress,
				})
				if err != nil {
					return err
				}
				results[i] = append(results[i], res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pr := &ProductResult{TestType: req.TestType, Success: true}
	for _, rs := range results {
		for _, r := range rs {
			pr.Sections = append(pr.Sections, r)
			pr.Generated += r.Generated
			pr.Failed += r.Failed
			pr.CostUSD += r.CostUSD
			pr.Success = pr.Success && r.Success
		}
	}
	if ctx.Err() != nil {
		pr.Success = false
	}
	pr.Elapsed = time.Since(start)
	return pr, nil
}
