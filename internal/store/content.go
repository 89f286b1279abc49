package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/dedup"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrDuplicateItem is bank.ErrDuplicateItem, re-exported for callers that
// only import the store.
var ErrDuplicateItem = bank.ErrDuplicateItem

var _ bank.ContentStore = (*Store)(nil)

func (s *Store) ExistingTexts(ctx context.Context, scope bank.HistoryScope) ([]string, error) {
	preds := []*entsql.Predicate{
		entsql.EQ("test_type", scope.TestType),
		entsql.EQ("section", scope.Section),
		entsql.EQ("sub_skill", scope.SubSkill),
	}
	if !scope.AllModes {
		preds = append(preds, entsql.EQ("mode", string(scope.Mode)))
	}
	b := s.builder()
	query, args := b.Select("question_text").
		From(b.Table("items")).
		Where(entsql.And(preds...)).
		OrderBy("seq").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query existing texts %s: %w", scope, err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan existing text: %w", err)
		}
		texts = append(texts, t)
	}
	return texts, rows.Err()
}

func (s *Store) CountExisting(ctx context.Context, cell bank.CellKey) (int, error) {
	b := s.builder()
	query, args := b.Select(entsql.Count("*")).
		From(b.Table("items")).
		Where(entsql.And(
			entsql.EQ("test_type", cell.TestType),
			entsql.EQ("section", cell.Section),
			entsql.EQ("sub_skill", cell.SubSkill),
			entsql.EQ("difficulty", int(cell.Difficulty)),
			entsql.EQ("mode", string(cell.Mode)),
		)).
		Query()
	return s.count(ctx, query, args)
}

func (s *Store) CountPassages(ctx context.Context, testType, section string, mode bank.TestMode, passageType string) (int, error) {
	b := s.builder()
	query, args := b.Select(entsql.Count("*")).
		From(b.Table("passages")).
		Where(entsql.And(
			entsql.EQ("test_type", testType),
			entsql.EQ("section", section),
			entsql.EQ("mode", string(mode)),
			entsql.EQ("passage_type", passageType),
		)).
		Query()
	return s.count(ctx, query, args)
}

func (s *Store) count(ctx context.Context, query string, args []any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) WriteItem(ctx context.Context, item *bank.Item) (string, error) {
	seq, err := s.seq.Next(ctx)
	if err != nil {
		return "", err
	}
	if err := s.insertItem(ctx, s.db, item, seq); err != nil {
		return "", err
	}
	return item.ID, nil
}

func (s *Store) WritePassage(ctx context.Context, p *bank.Passage) (string, error) {
	seq, err := s.seq.Next(ctx)
	if err != nil {
		return "", err
	}
	if err := s.insertPassage(ctx, s.db, p, seq); err != nil {
		return "", err
	}
	return p.ID, nil
}

// WriteBundle stores a new passage and its first item in one transaction.
// Sequence numbers are taken before the transaction opens: the counter
// needs the single SQLite connection the transaction would hold.
func (s *Store) WriteBundle(ctx context.Context, p *bank.Passage, item *bank.Item) error {
	pseq, err := s.seq.Next(ctx)
	if err != nil {
		return err
	}
	iseq, err := s.seq.Next(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bundle: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertPassage(ctx, tx, p, pseq); err != nil {
		return err
	}
	item.PassageID = p.ID
	if err := s.insertItem(ctx, tx, item, iseq); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bundle: %w", err)
	}
	return nil
}

func (s *Store) insertItem(ctx context.Context, db execer, item *bank.Item, seq int64) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	options, err := json.Marshal(nonNil(item.AnswerOptions))
	if err != nil {
		return fmt.Errorf("encode answer options: %w", err)
	}
	var passageID any
	if item.PassageID != "" {
		passageID = item.PassageID
	}

	query, args := s.builder().Insert("items").
		Columns("id", "seq", "test_type", "section", "sub_skill", "difficulty", "mode", "passage_id",
			"question_text", "normalized_text", "answer_options", "correct_answer", "solution",
			"response_type", "visual_type", "visual_markup", "model", "created_at").
		Values(item.ID, seq, item.TestType, item.Section, item.SubSkill, int(item.Difficulty), string(item.Mode), passageID,
			item.QuestionText, dedup.Normalize(item.QuestionText), string(options), item.CorrectAnswer, item.Solution,
			string(item.ResponseType), item.VisualType, item.VisualMarkup, item.Model, millis(item.CreatedAt)).
		Query()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("write item %s: %w", item.Cell(), ErrDuplicateItem)
		}
		return fmt.Errorf("write item %s: %w", item.Cell(), err)
	}
	return nil
}

func (s *Store) insertPassage(ctx context.Context, db execer, p *bank.Passage, seq int64) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	subSkills, err := json.Marshal(nonNil(p.SubSkills))
	if err != nil {
		return fmt.Errorf("encode passage sub-skills: %w", err)
	}

	query, args := s.builder().Insert("passages").
		Columns("id", "seq", "test_type", "section", "mode", "passage_type", "difficulty",
			"title", "content", "sub_skills", "model", "created_at").
		Values(p.ID, seq, p.TestType, p.Section, string(p.Mode), p.PassageType, int(p.Difficulty),
			p.Title, p.Content, string(subSkills), p.Model, millis(p.CreatedAt)).
		Query()
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("write passage: %w", err)
	}
	return nil
}

var passageColumns = []string{"id", "test_type", "section", "mode", "passage_type", "difficulty",
	"title", "content", "sub_skills", "model", "created_at"}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPassage(row rowScanner) (*bank.Passage, error) {
	var (
		p         bank.Passage
		mode      string
		diff      int
		subSkills string
		created   int64
	)
	if err := row.Scan(&p.ID, &p.TestType, &p.Section, &mode, &p.PassageType, &diff,
		&p.Title, &p.Content, &subSkills, &p.Model, &created); err != nil {
		return nil, err
	}
	p.Mode = bank.TestMode(mode)
	p.Difficulty = bank.Difficulty(diff)
	p.CreatedAt = fromMillis(created)
	if err := json.Unmarshal([]byte(subSkills), &p.SubSkills); err != nil {
		return nil, fmt.Errorf("decode passage sub-skills: %w", err)
	}
	return &p, nil
}

// GetPassage loads a passage with the ids of the items bound to it, or
// returns nil if it does not exist.
func (s *Store) GetPassage(ctx context.Context, id string) (*bank.Passage, error) {
	b := s.builder()
	query, args := b.Select(passageColumns...).
		From(b.Table("passages")).
		Where(entsql.EQ("id", id)).
		Query()

	p, err := scanPassage(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get passage %s: %w", id, err)
	}
	if p.QuestionIDs, err = s.passageQuestionIDs(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) ListPassages(ctx context.Context, testType, section string, mode bank.TestMode, passageType string) ([]bank.Passage, error) {
	b := s.builder()
	query, args := b.Select(passageColumns...).
		From(b.Table("passages")).
		Where(entsql.And(
			entsql.EQ("test_type", testType),
			entsql.EQ("section", section),
			entsql.EQ("mode", string(mode)),
			entsql.EQ("passage_type", passageType),
		)).
		OrderBy("seq").
		Query()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list passages: %w", err)
	}
	var out []bank.Passage
	for rows.Next() {
		p, err := scanPassage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		out = append(out, *p)
	}
	// Close before the per-passage queries; SQLite has one connection.
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list passages: %w", err)
	}

	for i := range out {
		if out[i].QuestionIDs, err = s.passageQuestionIDs(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) passageQuestionIDs(ctx context.Context, passageID string) ([]string, error) {
	b := s.builder()
	query, args := b.Select("id").
		From(b.Table("items")).
		Where(entsql.EQ("passage_id", passageID)).
		OrderBy("seq").
		Query()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passage items: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan passage item: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
