package itemgen

import (
	"context"
	"errors"
	"fmt"

	"github.com/abhisek/qbankgen/internal/bank"
)

// persist writes the item, or a new passage and its first item as one
// bundle. Transient store errors are retried under the generator's retry
// policy, each call with its own timeout. A duplicate write is returned at
// once.
func (g *Generator) persist(ctx context.Context, p *bank.Passage, it *bank.Item, opts Options) error {
	if opts.SkipStorage || g.store == nil {
		assignLocalIDs(p, it)
		if p != nil {
			p.QuestionIDs = append(p.QuestionIDs, it.ID)
		}
		return nil
	}

	if p != nil && p.ID == "" {
		// A new passage is only kept together with its first question.
		err := g.withStoreRetry(ctx, func(ctx context.Context) error {
			return g.store.WriteBundle(ctx, p, it)
		})
		if err != nil {
			p.ID, it.ID, it.PassageID = "", "", ""
			return fmt.Errorf("write passage bundle: %w", err)
		}
		p.QuestionIDs = append(p.QuestionIDs, it.ID)
		return nil
	}

	err := g.withStoreRetry(ctx, func(ctx context.Context) error {
		id, err := g.store.WriteItem(ctx, it)
		if err != nil {
			return err
		}
		it.ID = id
		return nil
	})
	if err != nil {
		return fmt.Errorf("write item: %w", err)
	}
	if p != nil {
		p.QuestionIDs = append(p.QuestionIDs, it.ID)
	}
	return nil
}

func (g *Generator) withStoreRetry(ctx context.Context, fn func(context.Context) error) error {
	policy := g.config.Retry
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, bank.ErrDuplicateItem)
	}
	return policy.Do(ctx, func(attempt int) error {
		callCtx := ctx
		if g.config.StoreTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.config.StoreTimeout)
			defer cancel()
		}
		err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			// The per-call deadline fired, not the caller's: retryable.
			return fmt.Errorf("store call timed out after %s: %w", g.config.StoreTimeout, errStoreTimeout)
		}
		if err != nil {
			g.log.Debug("store write attempt failed", "attempt", attempt+1, "error", err)
		}
		return err
	})
}

var errStoreTimeout = errors.New("store timeout")
