package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "qbank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(text string, d bank.Difficulty, mode bank.TestMode) *bank.Item {
	return &bank.Item{
		QuestionText:  text,
		AnswerOptions: []string{"a", "b", "c", "d"},
		CorrectAnswer: "a",
		Solution:      "because a",
		ResponseType:  bank.MultipleChoice,
		TestType:      "selective",
		Section:       "reading",
		SubSkill:      "inference",
		Difficulty:    d,
		Mode:          mode,
		Model:         "mock",
	}
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qbank.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.WriteItem(context.Background(), testItem("Why did Tom leave?", bank.Easy, "diagnostic"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.CountExisting(context.Background(), testItem("", bank.Easy, "diagnostic").Cell())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestContent_WriteCountAndHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, it := range []*bank.Item{
		testItem("Why did Tom leave?", bank.Easy, "diagnostic"),
		testItem("What does Ana feel?", bank.Easy, "diagnostic"),
		testItem("What is implied by the ending?", bank.Hard, "diagnostic"),
		testItem("Why did the dog bark?", bank.Easy, "practice_1"),
	} {
		id, err := s.WriteItem(ctx, it)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, it.ID)
		assert.False(t, it.CreatedAt.IsZero())
	}

	n, err := s.CountExisting(ctx, testItem("", bank.Easy, "diagnostic").Cell())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountExisting(ctx, testItem("", bank.Medium, "diagnostic").Cell())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	scope := bank.HistoryScope{TestType: "selective", Section: "reading", SubSkill: "inference", Mode: "diagnostic"}
	texts, err := s.ExistingTexts(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"Why did Tom leave?", "What does Ana feel?", "What is implied by the ending?"}, texts)

	scope.AllModes = true
	texts, err = s.ExistingTexts(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, texts, 4)
	assert.Equal(t, "Why did the dog bark?", texts[3])
}

func TestContent_DuplicateRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.WriteItem(ctx, testItem("Why did Tom leave?", bank.Easy, "diagnostic"))
	require.NoError(t, err)

	_, err = s.WriteItem(ctx, testItem("  why did TOM leave ", bank.Medium, "diagnostic"))
	require.ErrorIs(t, err, ErrDuplicateItem)

	// Another mode is a different uniqueness slot.
	_, err = s.WriteItem(ctx, testItem("Why did Tom leave?", bank.Easy, "practice_1"))
	require.NoError(t, err)
}

func TestContent_PassageBinding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &bank.Passage{
		Title:       "The Lighthouse",
		Content:     "Every night the keeper climbed the stairs...",
		PassageType: "narrative",
		Difficulty:  bank.Medium,
		TestType:    "selective",
		Section:     "reading",
		Mode:        "diagnostic",
		SubSkills:   []string{"inference", "vocabulary_in_context"},
		Model:       "mock",
	}
	pid, err := s.WritePassage(ctx, p)
	require.NoError(t, err)

	var ids []string
	for _, text := range []string{"Why does the keeper climb?", "What does 'beacon' mean?"} {
		it := testItem(text, bank.Medium, "diagnostic")
		it.PassageID = pid
		id, err := s.WriteItem(ctx, it)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	got, err := s.GetPassage(ctx, pid)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "The Lighthouse", got.Title)
	assert.Equal(t, bank.Medium, got.Difficulty)
	assert.Equal(t, []string{"inference", "vocabulary_in_context"}, got.SubSkills)
	assert.Equal(t, ids, got.QuestionIDs)

	n, err := s.CountPassages(ctx, "selective", "reading", "diagnostic", "narrative")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	missing, err := s.GetPassage(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestContent_UnknownPassageRejected(t *testing.T) {
	s := openTestStore(t)
	it := testItem("Orphan?", bank.Easy, "diagnostic")
	it.PassageID = "does-not-exist"
	_, err := s.WriteItem(context.Background(), it)
	require.Error(t, err)
}

func TestContent_WriteBundle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p := &bank.Passage{Title: "Tides", Content: "The sea came in.", PassageType: "narrative",
		TestType: "selective", Section: "reading", Mode: "diagnostic", SubSkills: []string{"inference"}}
	it := testItem("Why does the sea come in?", bank.Medium, "diagnostic")
	require.NoError(t, s.WriteBundle(ctx, p, it))
	require.NotEmpty(t, p.ID)
	assert.Equal(t, p.ID, it.PassageID)

	got, err := s.GetPassage(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{it.ID}, got.QuestionIDs)

	// The same first question again: the item hits the unique index and the
	// new passage must be rolled back with it.
	again := &bank.Passage{Title: "Tides II", Content: "The sea went out.", PassageType: "narrative",
		TestType: "selective", Section: "reading", Mode: "diagnostic"}
	err = s.WriteBundle(ctx, again, testItem("why does the sea come in", bank.Hard, "diagnostic"))
	require.ErrorIs(t, err, ErrDuplicateItem)

	n, err := s.CountPassages(ctx, "selective", "reading", "diagnostic", "narrative")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	missing, err := s.GetPassage(ctx, again.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestContent_ListPassages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	var want []string
	for i, title := range []string{"First", "Second"} {
		p := &bank.Passage{Title: title, PassageType: "narrative", TestType: "selective",
			Section: "reading", Mode: "diagnostic", SubSkills: []string{"inference"}}
		require.NoError(t, s.WriteBundle(ctx, p, testItem(fmt.Sprintf("Question %d?", i), bank.Easy, "diagnostic")))
		want = append(want, p.ID)
	}
	extra := testItem("A second question on the first passage?", bank.Easy, "diagnostic")
	extra.PassageID = want[0]
	_, err := s.WriteItem(ctx, extra)
	require.NoError(t, err)

	_, err = s.WritePassage(ctx, &bank.Passage{PassageType: "poetry", TestType: "selective", Section: "reading", Mode: "diagnostic"})
	require.NoError(t, err)

	got, err := s.ListPassages(ctx, "selective", "reading", "diagnostic", "narrative")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0], got[0].ID)
	assert.Equal(t, "First", got[0].Title)
	assert.Len(t, got[0].QuestionIDs, 2)
	assert.Equal(t, want[1], got[1].ID)
	assert.Len(t, got[1].QuestionIDs, 1)
	assert.Equal(t, []string{"inference"}, got[1].SubSkills)

	none, err := s.ListPassages(ctx, "selective", "reading", "practice_1", "narrative")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSchemaDDL(t *testing.T) {
	runs := tables[len(tables)-1]
	require.Equal(t, "runs", runs.name)

	lite := createTableSQL(dialect.SQLite, runs)
	assert.True(t, strings.HasPrefix(lite, "CREATE TABLE IF NOT EXISTS runs ("))
	assert.Contains(t, lite, "cost_usd REAL NOT NULL")
	assert.Contains(t, lite, "seq INTEGER NOT NULL")
	assert.Contains(t, lite, "PRIMARY KEY (id)")

	pg := createTableSQL(dialect.Postgres, runs)
	assert.Contains(t, pg, "cost_usd DOUBLE PRECISION NOT NULL")
	assert.Contains(t, pg, "seq BIGINT NOT NULL")

	assert.Equal(t,
		"CREATE UNIQUE INDEX IF NOT EXISTS items_unique_text ON items (test_type, section, sub_skill, mode, normalized_text)",
		createIndexSQL(indexes[0]))
	assert.Equal(t,
		"CREATE INDEX IF NOT EXISTS items_passage ON items (passage_id)",
		createIndexSQL(indexes[2]))

	// Migrating an existing schema is a no-op.
	s := openTestStore(t)
	require.NoError(t, s.migrate(context.Background()))
}

func TestEventRepo_AppendQueryAndStats(t *testing.T) {
	s := openTestStore(t)
	repo := s.EventRepo()
	ctx := context.Background()

	events := []LLMRequestEventData{
		{Provider: "anthropic", Model: "claude-sonnet-4-5-20250929", Purpose: "item-gen", InputTokens: 100, OutputTokens: 50, CostUSD: 0.001, LatencyMs: 200, Success: true},
		{Provider: "anthropic", Model: "claude-sonnet-4-5-20250929", Purpose: "item-gen", InputTokens: 120, OutputTokens: 60, CostUSD: 0.002, LatencyMs: 400, Success: false, ErrorMessage: "rate limited"},
		{Provider: "anthropic", Model: "claude-haiku-4-5-20251001", Purpose: "passage-gen", InputTokens: 300, OutputTokens: 900, LatencyMs: 900, Success: true, RequestBody: "[user]\nwrite", ResponseBody: "{}"},
	}
	for _, e := range events {
		require.NoError(t, repo.AppendLLMRequest(ctx, e))
	}

	all, err := repo.QueryLLMEvents(ctx, QueryOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "passage-gen", all[0].Purpose, "newest first")
	assert.Greater(t, all[0].ID, all[1].ID)

	limited, err := repo.QueryLLMEvents(ctx, QueryOpts{Limit: 1, Purpose: "item-gen"})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.False(t, limited[0].Success)
	assert.Equal(t, "rate limited", limited[0].ErrorMessage)

	got, err := repo.GetLLMEvent(ctx, all[0].ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "[user]\nwrite", got.RequestBody)
	assert.WithinDuration(t, time.Now(), got.Timestamp, time.Minute)

	none, err := repo.GetLLMEvent(ctx, 9999)
	require.NoError(t, err)
	assert.Nil(t, none)

	byPurpose, err := repo.LLMUsageByPurpose(ctx)
	require.NoError(t, err)
	require.Len(t, byPurpose, 2)
	assert.Equal(t, "item-gen", byPurpose[0].Purpose)
	assert.Equal(t, 2, byPurpose[0].Calls)
	assert.Equal(t, 220, byPurpose[0].InputTokens)
	assert.Equal(t, int64(300), byPurpose[0].AvgLatencyMs)
	assert.InDelta(t, 0.003, byPurpose[0].CostUSD, 1e-9)

	byModel, err := repo.LLMUsageByModel(ctx)
	require.NoError(t, err)
	require.Len(t, byModel, 2)
	assert.Equal(t, "claude-haiku-4-5-20251001", byModel[0].Model)
	assert.Equal(t, 900, byModel[0].OutputTokens)
}

func TestRunRepo_AppendAndList(t *testing.T) {
	s := openTestStore(t)
	repo := s.RunRepo()
	ctx := context.Background()

	start := time.Now().UTC().Truncate(time.Millisecond)
	for i, section := range []string{"reading", "mathematical_reasoning"} {
		run := &RunRecord{
			StartedAt:  start.Add(time.Duration(i) * time.Second),
			FinishedAt: start.Add(time.Duration(i)*time.Second + 500*time.Millisecond),
			TestType:   "selective",
			Section:    section,
			Mode:       "diagnostic",
			Strategy:   "balanced",
			Generated:  10 + i,
			Failed:     i,
			Attempts:   12,
			CostUSD:    0.25,
			Success:    i == 0,
			Warnings:   []string{"selective/reading: delta -2"},
		}
		require.NoError(t, repo.AppendRun(ctx, run))
		assert.NotEmpty(t, run.ID)
	}

	runs, err := repo.ListRuns(ctx, QueryOpts{})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "mathematical_reasoning", runs[0].Section)
	assert.False(t, runs[0].Success)
	assert.True(t, runs[1].Success)
	assert.Equal(t, start, runs[1].StartedAt)
	assert.Equal(t, []string{"selective/reading: delta -2"}, runs[1].Warnings)

	limited, err := repo.ListRuns(ctx, QueryOpts{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDefaultDBPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		want := filepath.Join(t.TempDir(), "sub", "custom.db")
		t.Setenv(DBEnv, want)
		got, err := DefaultDBPath()
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.DirExists(t, filepath.Dir(want))
	})

	t.Run("xdg data home", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv(DBEnv, "")
		t.Setenv("XDG_DATA_HOME", dir)
		got, err := DefaultDBPath()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "qbankgen", "qbank.db"), got)
	})

	t.Run("postgres dsn", func(t *testing.T) {
		t.Setenv(DBEnv, "postgres://qbank@localhost:5432/qbank")
		got, err := DefaultDBPath()
		require.NoError(t, err)
		assert.True(t, IsPostgresDSN(got))
	})
}

func TestMemory_MatchesContentContract(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	p := &bank.Passage{TestType: "selective", Section: "reading", Mode: "diagnostic", PassageType: "poetry"}
	pid, err := m.WritePassage(ctx, p)
	require.NoError(t, err)

	it := testItem("Which image opens the poem?", bank.Easy, "diagnostic")
	it.PassageID = pid
	it.Warnings = []string{"option count"}
	_, err = m.WriteItem(ctx, it)
	require.NoError(t, err)

	_, err = m.WriteItem(ctx, testItem("which image opens the poem", bank.Hard, "diagnostic"))
	require.ErrorIs(t, err, ErrDuplicateItem)

	orphan := testItem("Orphan?", bank.Easy, "diagnostic")
	orphan.PassageID = "missing"
	_, err = m.WriteItem(ctx, orphan)
	require.Error(t, err)

	n, err := m.CountExisting(ctx, it.Cell())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.CountPassages(ctx, "selective", "reading", "diagnostic", "poetry")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ps := m.Passages()
	require.Len(t, ps, 1)
	assert.Equal(t, []string{it.ID}, ps[0].QuestionIDs)
	assert.Nil(t, m.Items()[0].Warnings)

	boom := errors.New("disk full")
	m.FailNextWrites(1, boom)
	_, err = m.WriteItem(ctx, testItem("Another?", bank.Easy, "diagnostic"))
	require.ErrorIs(t, err, boom)
	_, err = m.WriteItem(ctx, testItem("Another?", bank.Easy, "diagnostic"))
	require.NoError(t, err)
}

func TestMemory_WriteBundle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first := testItem("Who rings the bell?", bank.Easy, "diagnostic")
	require.NoError(t, m.WriteBundle(ctx, &bank.Passage{PassageType: "narrative", TestType: "selective",
		Section: "reading", Mode: "diagnostic"}, first))

	err := m.WriteBundle(ctx, &bank.Passage{PassageType: "narrative", TestType: "selective",
		Section: "reading", Mode: "diagnostic"}, testItem("who rings the bell", bank.Hard, "diagnostic"))
	require.ErrorIs(t, err, ErrDuplicateItem)

	boom := errors.New("disk full")
	m.FailNextWrites(1, boom)
	err = m.WriteBundle(ctx, &bank.Passage{PassageType: "narrative", TestType: "selective",
		Section: "reading", Mode: "diagnostic"}, testItem("Where is the bell?", bank.Easy, "diagnostic"))
	require.ErrorIs(t, err, boom)

	ps, err := m.ListPassages(ctx, "selective", "reading", "diagnostic", "narrative")
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, []string{first.ID}, ps[0].QuestionIDs)
	assert.Len(t, m.Items(), 1)
}

func TestMemory_EventsAndRuns(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.AppendLLMRequest(ctx, LLMRequestEventData{Model: "mock", Purpose: "item-gen", InputTokens: 10, LatencyMs: 10}))
	require.NoError(t, m.AppendLLMRequest(ctx, LLMRequestEventData{Model: "mock", Purpose: "item-gen", InputTokens: 30, LatencyMs: 30}))

	usage, err := m.LLMUsageByPurpose(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 40, usage[0].InputTokens)
	assert.Equal(t, int64(20), usage[0].AvgLatencyMs)

	events, err := m.QueryLLMEvents(ctx, QueryOpts{Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 30, events[0].InputTokens)

	require.NoError(t, m.AppendRun(ctx, &RunRecord{Section: "reading"}))
	runs, err := m.ListRuns(ctx, QueryOpts{After: 2})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(3), runs[0].Sequence)
}
