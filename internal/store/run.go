package store

import (
	"context"
	"encoding/json"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
)

type runRepo struct {
	s *Store
}

var runColumns = []string{
	"id", "seq", "started_at", "finished_at", "test_type", "section", "mode", "strategy",
	"generated", "failed", "passages", "attempts", "input_tokens", "output_tokens",
	"cost_usd", "success", "dry_run", "warnings",
}

func (r *runRepo) AppendRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	seq, err := r.s.seq.Next(ctx)
	if err != nil {
		return err
	}
	run.Sequence = seq
	warnings, err := json.Marshal(nonNil(run.Warnings))
	if err != nil {
		return fmt.Errorf("encode run warnings: %w", err)
	}

	query, args := r.s.builder().Insert("runs").
		Columns(runColumns...).
		Values(run.ID, seq, millis(run.StartedAt), millis(run.FinishedAt), run.TestType, run.Section,
			run.Mode, run.Strategy, run.Generated, run.Failed, run.Passages, run.Attempts,
			run.InputTokens, run.OutputTokens, run.CostUSD, boolInt(run.Success), boolInt(run.DryRun),
			string(warnings)).
		Query()
	if _, err := r.s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (r *runRepo) ListRuns(ctx context.Context, opts QueryOpts) ([]RunRecord, error) {
	b := r.s.builder()
	sel := b.Select(runColumns...).From(b.Table("runs"))
	if p := opts.predicate("seq", "started_at"); p != nil {
		sel.Where(p)
	}
	sel.OrderBy(entsql.Desc("seq"))
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}
	query, args := sel.Query()

	rows, err := r.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			run               RunRecord
			started, finished int64
			success, dryRun   int
			warnings          string
		)
		if err := rows.Scan(&run.ID, &run.Sequence, &started, &finished, &run.TestType, &run.Section,
			&run.Mode, &run.Strategy, &run.Generated, &run.Failed, &run.Passages, &run.Attempts,
			&run.InputTokens, &run.OutputTokens, &run.CostUSD, &success, &dryRun, &warnings); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.StartedAt = fromMillis(started)
		run.FinishedAt = fromMillis(finished)
		run.Success = success != 0
		run.DryRun = dryRun != 0
		if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
			return nil, fmt.Errorf("decode run warnings: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
