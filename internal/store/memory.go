package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/dedup"
	"github.com/google/uuid"
)

// Memory is an in-process store used for dry runs and tests. All methods
// are guarded by one mutex, so a write is visible to the next read.
type Memory struct {
	mu       sync.Mutex
	seq      int64
	items    []bank.Item
	passages []bank.Passage
	events   []LLMEvent
	runs     []RunRecord

	failWrites int
	failErr    error
}

var (
	_ bank.ContentStore = (*Memory)(nil)
	_ EventRepo         = (*Memory)(nil)
	_ RunRepo           = (*Memory)(nil)
)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// FailNextWrites makes the next n item, passage or bundle writes return err.
func (m *Memory) FailNextWrites(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites, m.failErr = n, err
}

// Items returns a copy of every stored item in write order.
func (m *Memory) Items() []bank.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items)
}

// Passages returns a copy of every stored passage with its question ids.
func (m *Memory) Passages() []bank.Passage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.passages)
	for i := range out {
		out[i].QuestionIDs = m.passageQuestions(out[i].ID)
	}
	return out
}

// GetPassage returns the passage with its question ids, or nil.
func (m *Memory) GetPassage(_ context.Context, id string) (*bank.Passage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.passages {
		if p.ID == id {
			p.SubSkills = slices.Clone(p.SubSkills)
			p.QuestionIDs = m.passageQuestions(id)
			return &p, nil
		}
	}
	return nil, nil
}

func (m *Memory) passageQuestions(id string) []string {
	var ids []string
	for _, it := range m.items {
		if it.PassageID == id {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

func (m *Memory) ExistingTexts(_ context.Context, scope bank.HistoryScope) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var texts []string
	for _, it := range m.items {
		if it.TestType != scope.TestType || it.Section != scope.Section || it.SubSkill != scope.SubSkill {
			continue
		}
		if !scope.AllModes && it.Mode != scope.Mode {
			continue
		}
		texts = append(texts, it.QuestionText)
	}
	return texts, nil
}

func (m *Memory) CountExisting(_ context.Context, cell bank.CellKey) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.items {
		if m.items[i].Cell() == cell {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CountPassages(_ context.Context, testType, section string, mode bank.TestMode, passageType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.passages {
		if p.TestType == testType && p.Section == section && p.Mode == mode && p.PassageType == passageType {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListPassages(_ context.Context, testType, section string, mode bank.TestMode, passageType string) ([]bank.Passage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []bank.Passage
	for _, p := range m.passages {
		if p.TestType == testType && p.Section == section && p.Mode == mode && p.PassageType == passageType {
			p.SubSkills = slices.Clone(p.SubSkills)
			p.QuestionIDs = m.passageQuestions(p.ID)
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) WriteItem(ctx context.Context, item *bank.Item) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injectedFailure(ctx); err != nil {
		return "", err
	}
	if err := m.checkItem(item); err != nil {
		return "", err
	}
	if item.PassageID != "" && !slices.ContainsFunc(m.passages, func(p bank.Passage) bool { return p.ID == item.PassageID }) {
		return "", fmt.Errorf("write item %s: unknown passage %s", item.Cell(), item.PassageID)
	}
	m.appendItem(item)
	return item.ID, nil
}

func (m *Memory) WritePassage(ctx context.Context, p *bank.Passage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injectedFailure(ctx); err != nil {
		return "", err
	}
	m.appendPassage(p)
	return p.ID, nil
}

// WriteBundle checks the item before storing anything, so a rejected
// bundle leaves no passage behind. One injected failure fails the bundle.
func (m *Memory) WriteBundle(ctx context.Context, p *bank.Passage, item *bank.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injectedFailure(ctx); err != nil {
		return err
	}
	if err := m.checkItem(item); err != nil {
		return err
	}
	m.appendPassage(p)
	item.PassageID = p.ID
	m.appendItem(item)
	return nil
}

// checkItem mirrors the unique index of the SQL store.
func (m *Memory) checkItem(item *bank.Item) error {
	norm := dedup.Normalize(item.QuestionText)
	for _, it := range m.items {
		if it.TestType == item.TestType && it.Section == item.Section && it.SubSkill == item.SubSkill &&
			it.Mode == item.Mode && dedup.Normalize(it.QuestionText) == norm {
			return fmt.Errorf("write item %s: %w", item.Cell(), ErrDuplicateItem)
		}
	}
	return nil
}

func (m *Memory) appendItem(item *bank.Item) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	stored := *item
	stored.AnswerOptions = slices.Clone(item.AnswerOptions)
	stored.Warnings = nil
	m.items = append(m.items, stored)
}

func (m *Memory) appendPassage(p *bank.Passage) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	stored := *p
	stored.SubSkills = slices.Clone(p.SubSkills)
	stored.QuestionIDs = nil
	m.passages = append(m.passages, stored)
}

func (m *Memory) injectedFailure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.failWrites > 0 {
		m.failWrites--
		return m.failErr
	}
	return nil
}

func (m *Memory) AppendLLMRequest(_ context.Context, data LLMRequestEventData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.events = append(m.events, LLMEvent{ID: m.seq, Timestamp: time.Now().UTC(), LLMRequestEventData: data})
	return nil
}

func (m *Memory) QueryLLMEvents(_ context.Context, opts QueryOpts) ([]LLMEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []LLMEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if !opts.matches(e.ID, e.Timestamp) || (opts.Purpose != "" && e.Purpose != opts.Purpose) {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) GetLLMEvent(_ context.Context, id int64) (*LLMEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, nil
}

func (m *Memory) LLMUsageByPurpose(_ context.Context) ([]PurposeUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byPurpose := map[string]*PurposeUsage{}
	latency := map[string]int64{}
	for _, e := range m.events {
		u, ok := byPurpose[e.Purpose]
		if !ok {
			u = &PurposeUsage{Purpose: e.Purpose}
			byPurpose[e.Purpose] = u
		}
		u.Calls++
		u.InputTokens += e.InputTokens
		u.OutputTokens += e.OutputTokens
		u.CostUSD += e.CostUSD
		latency[e.Purpose] += e.LatencyMs
	}
	out := make([]PurposeUsage, 0, len(byPurpose))
	for p, u := range byPurpose {
		u.AvgLatencyMs = latency[p] / int64(u.Calls)
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b PurposeUsage) int { return strings.Compare(a.Purpose, b.Purpose) })
	return out, nil
}

func (m *Memory) LLMUsageByModel(_ context.Context) ([]ModelUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byModel := map[string]*ModelUsage{}
	for _, e := range m.events {
		u, ok := byModel[e.Model]
		if !ok {
			u = &ModelUsage{Model: e.Model}
			byModel[e.Model] = u
		}
		u.Calls++
		u.InputTokens += e.InputTokens
		u.OutputTokens += e.OutputTokens
		u.CostUSD += e.CostUSD
	}
	out := make([]ModelUsage, 0, len(byModel))
	for _, u := range byModel {
		out = append(out, *u)
	}
	slices.SortFunc(out, func(a, b ModelUsage) int { return strings.Compare(a.Model, b.Model) })
	return out, nil
}

func (m *Memory) AppendRun(_ context.Context, run *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	m.seq++
	run.Sequence = m.seq
	stored := *run
	stored.Warnings = slices.Clone(run.Warnings)
	m.runs = append(m.runs, stored)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, opts QueryOpts) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RunRecord
	for i := len(m.runs) - 1; i >= 0; i-- {
		r := m.runs[i]
		if !opts.matches(r.Sequence, r.StartedAt) {
			continue
		}
		out = append(out, r)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (o QueryOpts) matches(seq int64, ts time.Time) bool {
	if o.After > 0 && seq <= o.After {
		return false
	}
	if o.Before > 0 && seq >= o.Before {
		return false
	}
	if !o.From.IsZero() && ts.Before(o.From) {
		return false
	}
	if !o.To.IsZero() && ts.After(o.To) {
		return false
	}
	return true
}
