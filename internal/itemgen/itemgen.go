// Package itemgen turns one generation request into one validated, unique,
// stored question. It owns content-level retries: each rejected attempt
// (unparseable output, failed validation or a duplicate) is fed back into
// the next prompt.
package itemgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/dedup"
	"github.com/abhisek/qbankgen/internal/llm"
	"github.com/abhisek/qbankgen/internal/logger"
	"github.com/abhisek/qbankgen/internal/retry"
)

// LLM purposes recorded on the event log.
const (
	PurposeItem    = "item-gen"
	PurposePassage = "passage-gen"
)

var tracer = otel.Tracer("github.com/abhisek/qbankgen/internal/itemgen")

// Options toggle per-request behaviour.
type Options struct {
	SkipValidation   bool // accept any parseable output
	SkipStorage      bool // dry run: nothing is written
	StrictValidation bool // warnings fail the attempt

	// CrossModeDiversity widens the history read by the generator itself
	// (when no guard is passed) to every test mode of the sub-skill.
	CrossModeDiversity bool
}

// DefaultOptions returns validation on, storage on, cross-mode history.
func DefaultOptions() Options {
	return Options{CrossModeDiversity: true}
}

// Config holds generator settings.
type Config struct {
	Validators []Validator

	MaxTokens        int
	PassageMaxTokens int
	Temperature      float64

	// RecentSample is how many prior texts go into the prompt.
	RecentSample int

	// Retry bounds content attempts per request (MaxAttempts) and drives
	// store write retries.
	Retry retry.Policy

	// StoreTimeout bounds each store call. Zero means no per-call limit.
	StoreTimeout time.Duration
}

// DefaultValidators returns the standard validator chain.
func DefaultValidators() []Validator {
	return []Validator{
		&StructuralValidator{},
		&AnswerValidator{},
		&SolutionValidator{},
		&VisualValidator{},
	}
}

// DefaultConfig returns a Config with the standard validators.
func DefaultConfig() Config {
	return Config{
		Validators:       DefaultValidators(),
		MaxTokens:        1500,
		PassageMaxTokens: 4000,
		Temperature:      0.8,
		RecentSample:     dedup.DefaultRecent,
		Retry:            retry.Default(),
		StoreTimeout:     10 * time.Second,
	}
}

// Calibration supplies sub-skill descriptions and worked examples.
// *blueprint.Catalog satisfies it.
type Calibration interface {
	Describe(testType, section, subSkill string) string
	Examples(testType, section, subSkill string, d bank.Difficulty) []blueprint.Example
}

// Generator produces items. One Generator meters one run; create a new one
// per section run.
type Generator struct {
	provider llm.Provider
	store    bank.ContentStore
	calib    Calibration
	config   Config
	meter    *Meter
	log      *logger.Logger
}

// New creates a Generator. calib may be nil.
func New(provider llm.Provider, store bank.ContentStore, calib Calibration, cfg Config, log *logger.Logger) *Generator {
	if cfg.RecentSample <= 0 {
		cfg.RecentSample = dedup.DefaultRecent
	}
	return &Generator{
		provider: provider,
		store:    store,
		calib:    calib,
		config:   cfg,
		meter:    &Meter{},
		log:      logger.OrNop(log).With("component", "itemgen"),
	}
}

// Meter returns the generator's usage meter.
func (g *Generator) Meter() *Meter { return g.meter }

// Generate produces one standalone item for req. history is the duplicate
// guard for the request's scope; when nil it is read from the store.
func (g *Generator) Generate(ctx context.Context, req bank.GenerationRequest, history *dedup.Guard, opts Options) (*bank.Item, error) {
	ctx, span := tracer.Start(ctx, "itemgen.Generate", trace.WithAttributes(cellAttrs(req)...))
	defer span.End()

	history, err := g.guardFor(ctx, req, history, opts)
	if err != nil {
		return nil, endSpan(span, err)
	}
	_, item, err := g.run(ctx, job{
		purpose:   PurposeItem,
		system:    systemPrompt,
		schema:    ItemSchema,
		maxTokens: g.config.MaxTokens,
		req:       req,
		history:   history,
		opts:      opts,
	})
	return item, endSpan(span, err)
}

// GenerateForPassage produces one item bound to an existing passage. On
// success the item id is appended to passage.QuestionIDs.
func (g *Generator) GenerateForPassage(ctx context.Context, req bank.GenerationRequest, passage *bank.Passage, history *dedup.Guard, opts Options) (*bank.Item, error) {
	if passage == nil || passage.ID == "" {
		return nil, errors.New("generate for passage: passage has no id")
	}
	req.PassageID = passage.ID

	ctx, span := tracer.Start(ctx, "itemgen.GenerateForPassage", trace.WithAttributes(cellAttrs(req)...))
	defer span.End()

	history, err := g.guardFor(ctx, req, history, opts)
	if err != nil {
		return nil, endSpan(span, err)
	}
	_, item, err := g.run(ctx, job{
		purpose:   PurposeItem,
		system:    systemPrompt,
		schema:    ItemSchema,
		maxTokens: g.config.MaxTokens,
		req:       req,
		passage:   passage,
		history:   history,
		opts:      opts,
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	passage.QuestionIDs = append(passage.QuestionIDs, item.ID)
	return item, nil
}

// GeneratePassageBundle writes a new passage of passageType together with
// its first question (for req's sub-skill) in a single model call. planned
// lists the sub-skills the caller intends to ask about the passage.
func (g *Generator) GeneratePassageBundle(ctx context.Context, req bank.GenerationRequest, passageType string, planned []string, history *dedup.Guard, opts Options) (*bank.Passage, *bank.Item, error) {
	req.PassageID = ""

	ctx, span := tracer.Start(ctx, "itemgen.GeneratePassageBundle", trace.WithAttributes(
		append(cellAttrs(req), attribute.String("passage_type", passageType))...))
	defer span.End()

	history, err := g.guardFor(ctx, req, history, opts)
	if err != nil {
		return nil, nil, endSpan(span, err)
	}
	maxTokens := g.config.PassageMaxTokens
	if maxTokens <= 0 {
		maxTokens = g.config.MaxTokens
	}
	p, item, err := g.run(ctx, job{
		purpose:     PurposePassage,
		system:      passageSystemPrompt,
		schema:      BundleSchema,
		maxTokens:   maxTokens,
		req:         req,
		passageType: passageType,
		planned:     planned,
		history:     history,
		opts:        opts,
	})
	return p, item, endSpan(span, err)
}

// job is one request's worth of attempts.
type job struct {
	purpose   string
	system    string
	schema    *llm.Schema
	maxTokens int

	req         bank.GenerationRequest
	passage     *bank.Passage // bind to this passage
	passageType string        // or write a new one
	planned     []string

	history *dedup.Guard
	opts    Options
}

func (j job) bundle() bool { return j.passageType != "" }

// run is the attempt loop shared by every entry point.
func (g *Generator) run(ctx context.Context, j job) (*bank.Passage, *bank.Item, error) {
	cell := j.req.Cell()
	ctx = llm.WithPurpose(ctx, j.purpose)
	ctx = llm.WithScope(ctx, cell.String())
	// Retries inside the provider stack are model calls too.
	ctx = llm.WithAttemptObserver(ctx, func(model string, err error) {
		g.meter.record(model, llm.Usage{}, err)
	})
	log := g.log.With("cell", cell.String())

	var (
		description string
		examples    []blueprint.Example
	)
	if g.calib != nil {
		description = g.calib.Describe(j.req.TestType, j.req.Section, j.req.SubSkill)
		examples = g.calib.Examples(j.req.TestType, j.req.Section, j.req.SubSkill, j.req.Difficulty)
	}

	var (
		rejected   []string
		feedback   string
		lastReason string
		lastErr    error
		dupOnly    = true
	)
	maxAttempts := g.config.Retry.Attempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, &bank.GenerationFailure{Kind: bank.FailureModel, Attempts: attempt - 1, Reason: "cancelled", Err: err}
		}

		msg := buildUserMessage(promptInput{
			Req:         j.req,
			Description: description,
			Examples:    examples,
			Passage:     j.passage,
			PassageType: j.passageType,
			SubSkills:   j.planned,
			Negatives:   dedup.NegativeExamples(j.history.Recent(g.config.RecentSample), rejected),
			Feedback:    feedback,
		})
		resp, err := g.provider.Generate(ctx, llm.Request{
			System:      j.system,
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: msg}},
			Schema:      j.schema,
			MaxTokens:   j.maxTokens,
			Temperature: g.config.Temperature,
		})
		if err != nil {
			g.meter.record(g.provider.ModelID(), llm.Usage{}, err)
			log.Warn("model call failed", "attempt", attempt, "error", err)
			return nil, nil, &bank.GenerationFailure{Kind: bank.FailureModel, Attempts: attempt, Reason: "model call failed", Err: err}
		}
		g.meter.record(resp.Model, resp.Usage, nil)

		passage, item, perr := g.parse(resp, j)
		if perr != nil {
			dupOnly = false
			lastReason, lastErr = "unparseable output", perr
			feedback = "the output did not match the required JSON structure: " + perr.Error()
			log.Debug("attempt rejected", "attempt", attempt, "reason", lastReason, "error", perr)
			continue
		}

		if !j.opts.SkipValidation {
			warnings, verr := runValidators(g.config.Validators, item, j.req, j.opts.StrictValidation)
			if verr != nil {
				dupOnly = false
				lastReason, lastErr = "validation failed", verr
				feedback = verr.Message
				log.Debug("attempt rejected", "attempt", attempt, "reason", lastReason, "error", verr)
				continue
			}
			item.Warnings = warnings
		}

		if j.history.Check(item.QuestionText) {
			rejected = append(rejected, item.QuestionText)
			lastReason, lastErr = "duplicate question", nil
			feedback = fmt.Sprintf("the question %q duplicates one already in the bank", item.QuestionText)
			log.Debug("attempt rejected", "attempt", attempt, "reason", lastReason)
			continue
		}

		if err := g.persist(ctx, passage, item, j.opts); err != nil {
			if errors.Is(err, bank.ErrDuplicateItem) {
				// Another writer got there first.
				rejected = append(rejected, item.QuestionText)
				j.history.Add(item.QuestionText)
				lastReason, lastErr = "duplicate question", nil
				feedback = fmt.Sprintf("the question %q duplicates one already in the bank", item.QuestionText)
				continue
			}
			log.Error("store write failed", "attempt", attempt, "error", err)
			return nil, nil, &bank.GenerationFailure{Kind: bank.FailureStore, Attempts: attempt, Reason: "store write failed", Err: err}
		}

		j.history.Add(item.QuestionText)
		log.Debug("item generated", "attempt", attempt, "id", item.ID, "warnings", len(item.Warnings))
		return passage, item, nil
	}

	kind := bank.FailureValidation
	if dupOnly && len(rejected) > 0 {
		kind = bank.FailureDuplicateExhausted
	}
	return nil, nil, &bank.GenerationFailure{Kind: kind, Attempts: maxAttempts, Reason: lastReason, Err: lastErr}
}

// parse decodes the model output into the request's item, plus a passage
// for bundles.
func (g *Generator) parse(resp *llm.Response, j job) (*bank.Passage, *bank.Item, error) {
	if err := llm.ValidateContent(j.schema, resp.Content); err != nil {
		return nil, nil, err
	}

	var q questionOutput
	var passage *bank.Passage
	if j.bundle() {
		var out bundleOutput
		if err := json.Unmarshal(resp.Content, &out); err != nil {
			return nil, nil, fmt.Errorf("parse bundle: %w", err)
		}
		if strings.TrimSpace(out.Passage.Content) == "" {
			return nil, nil, errors.New("passage content is empty")
		}
		q = out.Question
		passage = &bank.Passage{
			Title:       strings.TrimSpace(out.Passage.Title),
			Content:     strings.TrimSpace(out.Passage.Content),
			PassageType: j.passageType,
			Difficulty:  j.req.Difficulty,
			TestType:    j.req.TestType,
			Section:     j.req.Section,
			Mode:        j.req.Mode,
			SubSkills:   append([]string(nil), j.planned...),
			Model:       resp.Model,
		}
	} else if err := json.Unmarshal(resp.Content, &q); err != nil {
		return nil, nil, fmt.Errorf("parse question: %w", err)
	}

	item := &bank.Item{
		QuestionText:  strings.TrimSpace(q.QuestionText),
		AnswerOptions: q.AnswerOptions,
		CorrectAnswer: q.CorrectAnswer,
		Solution:      q.Solution,
		ResponseType:  bank.ResponseType(q.ResponseType),
		VisualType:    q.VisualType,
		VisualMarkup:  q.VisualMarkup,
		TestType:      j.req.TestType,
		Section:       j.req.Section,
		SubSkill:      j.req.SubSkill,
		Difficulty:    j.req.Difficulty,
		Mode:          j.req.Mode,
		PassageID:     j.req.PassageID,
		Model:         resp.Model,
	}
	if item.ResponseType.FreeResponse() {
		item.AnswerOptions = nil
	}
	return passage, item, nil
}

// guardFor returns history, or reads one from the store.
func (g *Generator) guardFor(ctx context.Context, req bank.GenerationRequest, history *dedup.Guard, opts Options) (*dedup.Guard, error) {
	if history != nil {
		return history, nil
	}
	scope := req.History(opts.CrossModeDiversity)
	if g.store == nil {
		return dedup.NewGuard(scope.String(), nil), nil
	}
	texts, err := LoadHistory(ctx, g.store, scope, g.config.StoreTimeout)
	if err != nil {
		return nil, err
	}
	return dedup.NewGuard(scope.String(), texts), nil
}

// LoadHistory reads the texts of scope with an optional per-call timeout.
func LoadHistory(ctx context.Context, store bank.ContentStore, scope bank.HistoryScope, timeout time.Duration) ([]string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	texts, err := store.ExistingTexts(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", scope, err)
	}
	return texts, nil
}

// assignLocalIDs gives dry-run output ids so passage binding still works.
func assignLocalIDs(p *bank.Passage, it *bank.Item) {
	now := time.Now()
	if p != nil {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.CreatedAt = now
		it.PassageID = p.ID
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.CreatedAt = now
}

func cellAttrs(req bank.GenerationRequest) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("test_type", req.TestType),
		attribute.String("section", req.Section),
		attribute.String("sub_skill", req.SubSkill),
		attribute.Int("difficulty", int(req.Difficulty)),
		attribute.String("mode", string(req.Mode)),
	}
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
