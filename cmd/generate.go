package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/itemgen"
	"github.com/abhisek/qbankgen/internal/llm"
	"github.com/abhisek/qbankgen/internal/logger"
	"github.com/abhisek/qbankgen/internal/orchestrator"
	"github.com/abhisek/qbankgen/internal/quota"
	"github.com/abhisek/qbankgen/internal/store"
	"github.com/abhisek/qbankgen/internal/tracing"
	"github.com/abhisek/qbankgen/internal/ui/runview"
	"github.com/abhisek/qbankgen/internal/ui/theme"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate questions to fill the bank",
}

var generateSectionCmd = &cobra.Command{
	Use:   "section <test-type> <section>",
	Short: "Fill every quota cell of one section",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.close(cmd.Context())

		modes, err := e.modes(args[0])
		if err != nil {
			return err
		}
		useTUI, _ := cmd.Flags().GetBool("tui")

		failed := false
		for _, mode := range modes {
			req := e.sectionRequest(args[0], args[1], mode)
			var res *orchestrator.SectionResult
			runFn := func(ctx context.Context, progress func(orchestrator.Progress)) error {
				req.Progress = progress
				var err error
				res, err = e.orch.GenerateSection(ctx, req)
				return err
			}
			if useTUI {
				err = runview.Run(cmd.Context(), fmt.Sprintf("%s/%s (%s)", args[0], args[1], mode), runFn)
			} else {
				err = runFn(cmd.Context(), e.logProgress)
			}
			if err != nil {
				return fmt.Errorf("generate %s/%s (%s): %w", args[0], args[1], mode, err)
			}
			printSectionResult(res)
			if !res.Success {
				failed = true
			}
			if res.Cancelled {
				break
			}
		}
		if failed {
			return fmt.Errorf("section run did not meet the failure policy")
		}
		return nil
	},
}

var generateProductCmd = &cobra.Command{
	Use:   "product <test-type>",
	Short: "Fill every section of a product, several sections at a time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.close(cmd.Context())

		sections, _ := cmd.Flags().GetStringSlice("sections")
		req := orchestrator.ProductRequest{
			TestType:      args[0],
			Modes:         e.modeFlags,
			Sections:      sections,
			Strategy:      e.strategy,
			Options:       e.options,
			FailurePolicy: e.policy,
		}

		var res *orchestrator.ProductResult
		runFn := func(ctx context.Context, progress func(orchestrator.Progress)) error {
			req.Progress = progress
			var err error
			res, err = e.orch.GenerateProduct(ctx, req)
			return err
		}
		if useTUI, _ := cmd.Flags().GetBool("tui"); useTUI {
			err = runview.Run(cmd.Context(), args[0], runFn)
		} else {
			err = runFn(cmd.Context(), e.logProgress)
		}
		if err != nil {
			return fmt.Errorf("generate %s: %w", args[0], err)
		}

		for _, sr := range res.Sections {
			printSectionResult(sr)
		}
		fmt.Println(theme.Header.Render(fmt.Sprintf("%s: %d generated, %d failed, %s in %s",
			res.TestType, res.Generated, res.Failed, formatCost(res.CostUSD), res.Elapsed.Round(1e6))))
		if !res.Success {
			return fmt.Errorf("product run did not meet the failure policy")
		}
		return nil
	},
}

var generateItemCmd = &cobra.Command{
	Use:   "item <test-type> <section> <sub-skill>",
	Short: "Generate a single question",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine(cmd)
		if err != nil {
			return err
		}
		defer e.close(cmd.Context())

		difficulty, _ := cmd.Flags().GetInt("difficulty")
		responseType, _ := cmd.Flags().GetString("response-type")
		passageID, _ := cmd.Flags().GetString("passage")
		passageType, _ := cmd.Flags().GetString("passage-type")

		modes, err := e.modes(args[0])
		if err != nil {
			return err
		}

		res, err := e.orch.GenerateSingleItem(cmd.Context(), orchestrator.ItemRequest{
			Request: bank.GenerationRequest{
				TestType:     args[0],
				Section:      args[1],
				SubSkill:     args[2],
				Difficulty:   bank.Difficulty(difficulty),
				Mode:         modes[0],
				ResponseType: bank.ResponseType(responseType),
				PassageID:    passageID,
			},
			Options:     e.options,
			PassageType: passageType,
		})
		if err != nil {
			return fmt.Errorf("generate item: %w", err)
		}
		printItem(res)
		return nil
	},
}

// engine bundles everything a generate command needs.
type engine struct {
	store    *store.Store
	catalog  *blueprint.Catalog
	orch     *orchestrator.Orchestrator
	log      *logger.Logger
	shutdown func(context.Context) error

	modeFlags []bank.TestMode
	strategy  quota.DifficultyStrategy
	options   itemgen.Options
	policy    orchestrator.FailurePolicy
}

func newEngine(cmd *cobra.Command) (*engine, error) {
	ctx := cmd.Context()
	log, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	cat, err := loadCatalog(cmd)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	strategyName, _ := f.GetString("strategy")
	strategy, err := quota.ParseStrategy(strategyName)
	if err != nil {
		return nil, err
	}
	policyName, _ := f.GetString("failure-policy")
	policy, err := orchestrator.ParseFailurePolicy(policyName)
	if err != nil {
		return nil, err
	}
	modeNames, _ := f.GetStringSlice("mode")
	var modeFlags []bank.TestMode
	for _, m := range modeNames {
		modeFlags = append(modeFlags, bank.TestMode(strings.TrimSpace(m)))
	}

	opts := itemgen.DefaultOptions()
	opts.StrictValidation, _ = f.GetBool("strict")
	opts.SkipValidation, _ = f.GetBool("skip-validation")
	opts.SkipStorage, _ = f.GetBool("dry-run")
	opts.CrossModeDiversity, _ = f.GetBool("cross-mode")

	cfg := orchestrator.DefaultConfig()
	if n, _ := f.GetInt("max-attempts"); n > 0 {
		cfg.Generator.Retry.MaxAttempts = n
	}
	if n, _ := f.GetInt("recent"); n > 0 {
		cfg.Generator.RecentSample = n
	}
	if n, _ := f.GetInt("concurrency"); n > 0 {
		cfg.Concurrency = n
	}

	shutdown := func(context.Context) error { return nil }
	if trace, _ := f.GetBool("trace"); trace || tracing.Enabled() {
		shutdown, err = tracing.Setup(ctx, log, tracing.Config{ServiceName: "qbankgen", Version: version})
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
	}

	s, err := openStore(cmd)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProviderFromEnv(ctx, s.EventRepo(), log)
	if err != nil {
		s.Close()
		fmt.Fprintln(os.Stderr, "LLM provider not configured:", err)
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	orch := orchestrator.New(provider, s, cat, cfg, log)
	orch.RecordRuns(s.RunRepo())

	return &engine{
		store:     s,
		catalog:   cat,
		orch:      orch,
		log:       log,
		shutdown:  shutdown,
		modeFlags: modeFlags,
		strategy:  strategy,
		options:   opts,
		policy:    policy,
	}, nil
}

func (e *engine) close(ctx context.Context) {
	if err := e.shutdown(context.WithoutCancel(ctx)); err != nil {
		e.log.Warn("tracing shutdown failed", "error", err)
	}
	e.store.Close()
	e.log.Sync()
}

// modes returns the --mode values, or every mode of the product.
func (e *engine) modes(testType string) ([]bank.TestMode, error) {
	if len(e.modeFlags) > 0 {
		return e.modeFlags, nil
	}
	return e.catalog.Modes(testType)
}

func (e *engine) sectionRequest(testType, section string, mode bank.TestMode) orchestrator.SectionRequest {
	return orchestrator.SectionRequest{
		TestType:      testType,
		Section:       section,
		Mode:          mode,
		Strategy:      e.strategy,
		Options:       e.options,
		FailurePolicy: e.policy,
	}
}

func (e *engine) logProgress(p orchestrator.Progress) {
	if p.Phase != orchestrator.PhaseGenerating {
		e.log.Info("run phase", "phase", p.Phase, "section", p.Section, "mode", p.Mode, "deficit", p.Deficit)
		return
	}
	e.log.Debug("progress", "cell", p.Cell.String(), "generated", p.Generated, "failed", p.Failed,
		"deficit", p.Deficit, "cost_usd", p.CostUSD)
}

func printSectionResult(res *orchestrator.SectionResult) {
	title := fmt.Sprintf("%s / %s / %s", res.TestType, res.Section, res.Mode)
	if res.DryRun {
		title += " (dry run)"
	}
	fmt.Println(theme.Title.Render(title))
	fmt.Printf("%-44s  %6s  %8s  %9s  %6s  %9s  %s\n",
		"Cell", "Target", "Existing", "Generated", "Failed", "Remaining", "Reasons")
	fmt.Println(strings.Repeat("─", 110))
	for _, c := range res.Cells {
		if c.Target == 0 && c.Generated == 0 && c.Failed == 0 {
			continue
		}
		line := fmt.Sprintf("%-44s  %6d  %8d  %9d  %6d  %9d  %s",
			truncate(c.Cell.String(), 44), c.Target, c.Existing, c.Generated, c.Failed, c.Remaining,
			strings.Join(c.Reasons, "; "))
		if c.IsFailed() {
			line = theme.Bad.Render(line)
		}
		fmt.Println(line)
	}
	fmt.Println(strings.Repeat("─", 110))

	status := theme.Good.Render("success")
	switch {
	case res.Cancelled:
		status = theme.Warn.Render("cancelled")
	case !res.Success:
		status = theme.Bad.Render(fmt.Sprintf("failed (%d cells)", res.FailedCells()))
	}
	fmt.Printf("%s  generated %d, failed %d, passages %d, attempts %d, tokens %d/%d, cost %s, %s\n",
		status, res.Generated, res.Failed, res.Passages, res.Attempts,
		res.InputTokens, res.OutputTokens, formatCost(res.CostUSD), res.Elapsed.Round(1e6))
	for _, w := range res.Warnings {
		fmt.Println(theme.Warn.Render("warning: " + w))
	}
	fmt.Println()
}

func printItem(res *orchestrator.ItemResult) {
	if p := res.Passage; p != nil {
		fmt.Println(theme.Title.Render(fmt.Sprintf("Passage %s: %s", p.ID, p.Title)))
		fmt.Println(p.Content)
		fmt.Println()
	}
	it := res.Item
	fmt.Println(theme.Title.Render("Question " + it.ID))
	fmt.Println(it.QuestionText)
	for i, opt := range it.AnswerOptions {
		fmt.Printf("  %c) %s\n", 'A'+i, opt)
	}
	fmt.Printf("\nAnswer:   %s\n", it.CorrectAnswer)
	if it.Solution != "" {
		fmt.Printf("Solution: %s\n", it.Solution)
	}
	if it.VisualType != "" {
		fmt.Printf("Visual:   %s\n", it.VisualType)
	}
	for _, w := range it.Warnings {
		fmt.Println(theme.Warn.Render("warning: " + w))
	}
	fmt.Println(theme.Dim.Render(fmt.Sprintf("%d attempts, %d/%d tokens, %s",
		res.Usage.Attempts, res.Usage.InputTokens, res.Usage.OutputTokens, formatCost(res.Usage.CostUSD))))
}

func addEngineFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringSliceP("mode", "m", nil, "Test mode(s); defaults to every mode of the product")
	f.StringP("strategy", "s", "balanced", "Difficulty strategy: balanced or weighted:E,M,H")
	f.Bool("strict", false, "Treat validation warnings as failures")
	f.Bool("skip-validation", false, "Accept any output that matches the schema")
	f.Bool("dry-run", false, "Generate without writing to the bank")
	f.Bool("cross-mode", true, "Check duplicates against every test mode of the sub-skill")
	f.Int("max-attempts", 0, "Content attempts per question (default 3)")
	f.Int("recent", 0, "Prior questions shown to the model as negative examples")
	f.Bool("trace", false, "Write OpenTelemetry spans to stderr (or set QBANK_TRACE)")
}

func init() {
	for _, c := range []*cobra.Command{generateSectionCmd, generateProductCmd, generateItemCmd} {
		addEngineFlags(c)
	}
	for _, c := range []*cobra.Command{generateSectionCmd, generateProductCmd} {
		c.Flags().String("failure-policy", "any", "Run success rule: any or max:N failed cells")
		c.Flags().Bool("tui", false, "Show a live progress view")
	}
	generateProductCmd.Flags().StringSlice("sections", nil, "Limit the run to these sections")
	generateProductCmd.Flags().Int("concurrency", 0, "Sections generated at once (default 2)")

	generateItemCmd.Flags().IntP("difficulty", "d", int(bank.Medium), "Difficulty 1-3")
	generateItemCmd.Flags().String("response-type", "", "Override the section response type")
	generateItemCmd.Flags().String("passage", "", "Bind the question to an existing passage id")
	generateItemCmd.Flags().String("passage-type", "", "Passage type for a new passage")

	generateCmd.AddCommand(generateSectionCmd)
	generateCmd.AddCommand(generateProductCmd)
	generateCmd.AddCommand(generateItemCmd)
}
