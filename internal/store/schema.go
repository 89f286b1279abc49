package store

import (
	"context"
	"fmt"
	"strings"

	"entgo.io/ent/dialect"
)

// Column kinds, mapped to a concrete type per dialect. Times are stored as
// unix milliseconds and booleans as 0/1 so both backends scan identically.
const (
	kindText = "text"
	kindInt  = "int"
	kindReal = "real"
)

type columnDef struct {
	name string
	kind string
	attr string
}

type tableDef struct {
	name    string
	columns []columnDef
	pk      string
}

type indexDef struct {
	name    string
	table   string
	columns []string
	unique  bool
}

var tables = []tableDef{
	{
		name: "passages",
		pk:   "id",
		columns: []columnDef{
			{"id", kindText, "NOT NULL"},
			{"seq", kindInt, "NOT NULL"},
			{"test_type", kindText, "NOT NULL"},
			{"section", kindText, "NOT NULL"},
			{"mode", kindText, "NOT NULL"},
			{"passage_type", kindText, "NOT NULL"},
			{"difficulty", kindInt, "NOT NULL"},
			{"title", kindText, "NOT NULL"},
			{"content", kindText, "NOT NULL"},
			{"sub_skills", kindText, "NOT NULL"},
			{"model", kindText, "NOT NULL"},
			{"created_at", kindInt, "NOT NULL"},
		},
	},
	{
		name: "items",
		pk:   "id",
		columns: []columnDef{
			{"id", kindText, "NOT NULL"},
			{"seq", kindInt, "NOT NULL"},
			{"test_type", kindText, "NOT NULL"},
			{"section", kindText, "NOT NULL"},
			{"sub_skill", kindText, "NOT NULL"},
			{"difficulty", kindInt, "NOT NULL"},
			{"mode", kindText, "NOT NULL"},
			{"passage_id", kindText, "REFERENCES passages(id)"},
			{"question_text", kindText, "NOT NULL"},
			{"normalized_text", kindText, "NOT NULL"},
			{"answer_options", kindText, "NOT NULL"},
			{"correct_answer", kindText, "NOT NULL"},
			{"solution", kindText, "NOT NULL"},
			{"response_type", kindText, "NOT NULL"},
			{"visual_type", kindText, "NOT NULL"},
			{"visual_markup", kindText, "NOT NULL"},
			{"model", kindText, "NOT NULL"},
			{"created_at", kindInt, "NOT NULL"},
		},
	},
	{
		name: "llm_events",
		pk:   "seq",
		columns: []columnDef{
			{"seq", kindInt, "NOT NULL"},
			{"created_at", kindInt, "NOT NULL"},
			{"provider", kindText, "NOT NULL"},
			{"model", kindText, "NOT NULL"},
			{"purpose", kindText, "NOT NULL"},
			{"scope", kindText, "NOT NULL"},
			{"input_tokens", kindInt, "NOT NULL"},
			{"output_tokens", kindInt, "NOT NULL"},
			{"cost_usd", kindReal, "NOT NULL"},
			{"latency_ms", kindInt, "NOT NULL"},
			{"success", kindInt, "NOT NULL"},
			{"error_message", kindText, "NOT NULL"},
			{"request_body", kindText, "NOT NULL"},
			{"response_body", kindText, "NOT NULL"},
		},
	},
	{
		name: "runs",
		pk:   "id",
		columns: []columnDef{
			{"id", kindText, "NOT NULL"},
			{"seq", kindInt, "NOT NULL"},
			{"started_at", kindInt, "NOT NULL"},
			{"finished_at", kindInt, "NOT NULL"},
			{"test_type", kindText, "NOT NULL"},
			{"section", kindText, "NOT NULL"},
			{"mode", kindText, "NOT NULL"},
			{"strategy", kindText, "NOT NULL"},
			{"generated", kindInt, "NOT NULL"},
			{"failed", kindInt, "NOT NULL"},
			{"passages", kindInt, "NOT NULL"},
			{"attempts", kindInt, "NOT NULL"},
			{"input_tokens", kindInt, "NOT NULL"},
			{"output_tokens", kindInt, "NOT NULL"},
			{"cost_usd", kindReal, "NOT NULL"},
			{"success", kindInt, "NOT NULL"},
			{"dry_run", kindInt, "NOT NULL"},
			{"warnings", kindText, "NOT NULL"},
		},
	},
}

var indexes = []indexDef{
	// One normalized text per sub-skill and mode. Cross-mode uniqueness is
	// enforced by the duplicate guard when cross-mode diversity is on.
	{"items_unique_text", "items", []string{"test_type", "section", "sub_skill", "mode", "normalized_text"}, true},
	{"items_cell", "items", []string{"test_type", "section", "sub_skill", "difficulty", "mode"}, false},
	{"items_passage", "items", []string{"passage_id"}, false},
	{"passages_slot", "passages", []string{"test_type", "section", "mode", "passage_type"}, false},
	{"llm_events_purpose", "llm_events", []string{"purpose"}, false},
}

func columnType(d, kind string) string {
	switch kind {
	case kindInt:
		if d == dialect.Postgres {
			return "BIGINT"
		}
		return "INTEGER"
	case kindReal:
		if d == dialect.Postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	default:
		return "TEXT"
	}
}

// migrate creates missing tables and indexes. Schema changes beyond
// additive creation are not handled.
func (s *Store) migrate(ctx context.Context) error {
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, createTableSQL(s.dialect, t)); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
	}
	for _, ix := range indexes {
		if _, err := s.db.ExecContext(ctx, createIndexSQL(ix)); err != nil {
			return fmt.Errorf("create index %s: %w", ix.name, err)
		}
	}
	return nil
}

func createTableSQL(d string, t tableDef) string {
	defs := make([]string, 0, len(t.columns)+1)
	for _, c := range t.columns {
		def := c.name + " " + columnType(d, c.kind)
		if c.attr != "" {
			def += " " + c.attr
		}
		defs = append(defs, def)
	}
	defs = append(defs, "PRIMARY KEY ("+t.pk+")")
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.name, strings.Join(defs, ",\n\t"))
}

// Both SQLite and Postgres accept IF NOT EXISTS on CREATE INDEX.
func createIndexSQL(ix indexDef) string {
	kind := "INDEX"
	if ix.unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)", kind, ix.name, ix.table, strings.Join(ix.columns, ", "))
}
