package orchestrator

import (
	"context"
	"fmt"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/quota"
)

// assignment is one planned question of a passage.
type assignment struct {
	cell *CellResult
}

// assignSlot plans up to count questions of one passage: per round-robin
// across the group's sub-skills starting at position start, each taking the
// lowest difficulty that still has unplanned deficit. Sub-skills with
// nothing left are skipped. planned holds the unplanned deficit per cell and
// is decremented.
func (r *run) assignSlot(b quota.PassageBudget, start, count int, planned map[bank.CellKey]int) []assignment {
	n := len(b.SubSkills)
	if n == 0 {
		return nil
	}
	var out []assignment
	next := start % n
	for len(out) < count {
		found := false
		for i := range n {
			sub := b.SubSkills[(next+i)%n].SubSkill
			cr := r.lowestOpen(sub, planned)
			if cr == nil {
				continue
			}
			planned[cr.Cell]--
			out = append(out, assignment{cell: cr})
			next = (next + i + 1) % n
			found = true
			break
		}
		if !found {
			break
		}
	}
	return out
}

// assignTopUp plans the questions a stored passage is still missing. The
// sub-skills the passage was written for come first; the rest of the gap is
// filled round-robin as for a new slot.
func (r *run) assignTopUp(b quota.PassageBudget, slot int, p *bank.Passage, planned map[bank.CellKey]int) []assignment {
	have := len(p.QuestionIDs)
	missing := b.PerPassage - have
	if missing <= 0 {
		return nil
	}
	var out []assignment
	if have < len(p.SubSkills) {
		for _, sub := range p.SubSkills[have:] {
			if len(out) == missing {
				break
			}
			if cr := r.lowestOpen(sub, planned); cr != nil {
				planned[cr.Cell]--
				out = append(out, assignment{cell: cr})
			}
		}
	}
	if len(out) < missing {
		out = append(out, r.assignSlot(b, slot*b.PerPassage+have+len(out), missing-len(out), planned)...)
	}
	return out
}

// lowestOpen returns the sub-skill's lowest-difficulty cell with unplanned
// deficit, or nil.
func (r *run) lowestOpen(subSkill string, planned map[bank.CellKey]int) *CellResult {
	for _, d := range bank.Difficulties {
		key := bank.CellKey{
			TestType:   r.quota.TestType,
			Section:    r.quota.Section,
			SubSkill:   subSkill,
			Difficulty: d,
			Mode:       r.req.Mode,
		}
		if planned[key] > 0 {
			return r.byKey[key]
		}
	}
	return nil
}

// generatePassages first tops up stored passages that are short of
// questions, then fills the passage slots not yet used. Cancellation is
// checked only between passages so a passage never ends up with a partial
// question set because of it. Deficit left without a slot is charged to its
// cell as unplaced.
func (o *Orchestrator) generatePassages(ctx context.Context, r *run) {
	planned := make(map[bank.CellKey]int, len(r.cells))
	for _, cr := range r.cells {
		planned[cr.Cell] = cr.Remaining
	}
	restore := func(unplaced []assignment) {
		for _, a := range unplaced {
			planned[a.cell.Cell]++
		}
	}

	for _, b := range r.quota.Passages {
		var stored []bank.Passage
		err := o.storeCall(ctx, func(ctx context.Context) error {
			var err error
			stored, err = o.store.ListPassages(ctx, r.req.TestType, r.req.Section, r.req.Mode, b.PassageType)
			return err
		})
		if err != nil {
			r.result.Warnings = append(r.result.Warnings,
				fmt.Sprintf("%s passages skipped: %v", b.PassageType, err))
			o.log.Error("list passages failed", "passage_type", b.PassageType, "error", err)
			continue
		}

		for i := range stored {
			if sumPlanned(planned) == 0 {
				break
			}
			if ctx.Err() != nil {
				r.result.Cancelled = true
				return
			}
			as := r.assignTopUp(b, i, &stored[i], planned)
			if len(as) == 0 {
				continue
			}
			o.log.Debug("topping up stored passage", "passage", stored[i].ID,
				"have", len(stored[i].QuestionIDs), "adding", len(as))
			restore(o.bindQuestions(context.WithoutCancel(ctx), r, &stored[i], as))
		}

		for slot := len(stored); slot < b.Passages; slot++ {
			if ctx.Err() != nil {
				r.result.Cancelled = true
				return
			}
			as := r.assignSlot(b, slot*b.PerPassage, b.PerPassage, planned)
			if len(as) == 0 {
				o.log.Debug("passage slot has nothing to assign", "passage_type", b.PassageType, "slot", slot)
				continue
			}
			restore(o.generatePassage(context.WithoutCancel(ctx), r, b, as))
		}
	}

	if left := sumPlanned(planned); left > 0 {
		for _, cr := range r.cells {
			if n := planned[cr.Cell]; n > 0 {
				cr.Unplaced = n
				cr.Reasons = append(cr.Reasons, fmt.Sprintf("%d questions without a passage slot", n))
			}
		}
		r.result.Warnings = append(r.result.Warnings,
			fmt.Sprintf("%d questions could not be placed: every passage slot is used", left))
	}
}

// generatePassage writes one passage with its first question, then the
// remaining questions bound to it. It returns the assignments that were not
// generated so they can be planned into a later slot.
func (o *Orchestrator) generatePassage(ctx context.Context, r *run, b quota.PassageBudget, as []assignment) []assignment {
	first := as[0].cell
	subSkills := make([]string, 0, len(as))
	for _, a := range as {
		subSkills = append(subSkills, a.cell.Cell.SubSkill)
	}

	var passage *bank.Passage
	for tries := 0; tries < o.config.CellFailureLimit; tries++ {
		p, _, err := r.gen.GeneratePassageBundle(ctx, r.request(first.Cell), b.PassageType, subSkills,
			r.guards[first.Cell.SubSkill], r.req.Options)
		if err != nil {
			o.fail(r, first, err)
			continue
		}
		passage = p
		break
	}
	if passage == nil {
		return as
	}
	r.progress.Passages++
	o.succeed(r, first)
	return o.bindQuestions(ctx, r, passage, as[1:])
}

// bindQuestions generates the assigned questions against a stored passage
// and returns the assignments that failed.
func (o *Orchestrator) bindQuestions(ctx context.Context, r *run, passage *bank.Passage, as []assignment) []assignment {
	var unplaced []assignment
	for _, a := range as {
		ok := false
		for tries := 0; tries < o.config.CellFailureLimit; tries++ {
			_, err := r.gen.GenerateForPassage(ctx, r.request(a.cell.Cell), passage,
				r.guards[a.cell.Cell.SubSkill], r.req.Options)
			if err != nil {
				o.fail(r, a.cell, err)
				continue
			}
			o.succeed(r, a.cell)
			ok = true
			break
		}
		if !ok {
			unplaced = append(unplaced, a)
		}
	}
	return unplaced
}

func sumPlanned(planned map[bank.CellKey]int) int {
	n := 0
	for _, v := range planned {
		n += v
	}
	return n
}
