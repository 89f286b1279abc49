package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/itemgen"
)

// PassageReader is implemented by stores that can load a passage by id.
type PassageReader interface {
	GetPassage(ctx context.Context, id string) (*bank.Passage, error)
}

// ItemRequest asks for a single item outside a section run.
type ItemRequest struct {
	Request bank.GenerationRequest
	Options itemgen.Options

	// PassageType selects the passage to write when the section is
	// passage-based and Request.PassageID is empty. Defaults to the first
	// distribution entry that lists the sub-skill.
	PassageType string
}

// ItemResult is the outcome of GenerateSingleItem.
type ItemResult struct {
	Item    *bank.Item
	Passage *bank.Passage // set for passage-based sections
	Usage   itemgen.Usage
}

// GenerateSingleItem generates one item with history loaded for its scope.
// Generation failures are returned as *bank.GenerationFailure.
func (o *Orchestrator) GenerateSingleItem(ctx context.Context, ir ItemRequest) (*ItemResult, error) {
	req := ir.Request
	section, err := o.catalog.Section(req.TestType, req.Section)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(section.SubSkillNames(), req.SubSkill) {
		return nil, fmt.Errorf("sub-skill %q is not part of %s/%s", req.SubSkill, req.TestType, req.Section)
	}
	if !req.Difficulty.Valid() {
		return nil, fmt.Errorf("difficulty must be 1, 2 or 3, got %d", req.Difficulty)
	}
	modes, err := o.catalog.Modes(req.TestType)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(modes, req.Mode) {
		return nil, fmt.Errorf("test mode %q is not defined for %s", req.Mode, req.TestType)
	}
	if req.ResponseType == "" {
		req.ResponseType = section.ResponseType
	}

	gen := itemgen.New(o.provider, o.store, o.catalog, o.config.Generator, o.log)
	res := &ItemResult{}

	switch {
	case section.Strategy == blueprint.PassageBased && req.PassageID != "":
		pr, ok := o.store.(PassageReader)
		if !ok {
			return nil, errors.New("store cannot load passages by id")
		}
		p, perr := pr.GetPassage(ctx, req.PassageID)
		if perr != nil {
			return nil, perr
		}
		if p == nil {
			return nil, fmt.Errorf("passage %s not found", req.PassageID)
		}
		res.Passage = p
		res.Item, err = gen.GenerateForPassage(ctx, req, p, nil, ir.Options)
	case section.Strategy == blueprint.PassageBased:
		pt := ir.PassageType
		if pt == "" {
			pt = passageTypeFor(section, req.SubSkill)
		}
		res.Passage, res.Item, err = gen.GeneratePassageBundle(ctx, req, pt, []string{req.SubSkill}, nil, ir.Options)
	default:
		res.Item, err = gen.Generate(ctx, req, nil, ir.Options)
	}
	res.Usage = gen.Meter().Snapshot()
	return res, err
}

func passageTypeFor(s *blueprint.Section, subSkill string) string {
	for _, g := range s.Distribution {
		if slices.Contains(g.SubSkills, subSkill) {
			return g.PassageType
		}
	}
	return ""
}
