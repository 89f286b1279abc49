package blueprint

import (
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// SupportedMajor is the catalog schema major version this build reads.
const SupportedMajor = "v1"

// validate performs the structural checks on a decoded catalog. Totals that
// disagree with their distribution are not structural errors; the quota
// calculator reports them.
func (c *Catalog) validate() error {
	var errs []string

	v := c.Version
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	switch {
	case c.Version == "":
		errs = append(errs, "version is required")
	case !semver.IsValid(v):
		errs = append(errs, fmt.Sprintf("version %q is not a semantic version", c.Version))
	case semver.Major(v) != SupportedMajor:
		errs = append(errs, fmt.Sprintf("version %q is not supported (want %s.x)", c.Version, SupportedMajor))
	}

	products := make(map[string]bool)
	sections := make(map[string]bool)
	for _, p := range c.Products {
		if p.TestType == "" {
			errs = append(errs, "product with empty test_type")
			continue
		}
		if products[p.TestType] {
			errs = append(errs, fmt.Sprintf("duplicate test_type %q", p.TestType))
		}
		products[p.TestType] = true
		if len(p.Modes) == 0 {
			errs = append(errs, fmt.Sprintf("%s: no test modes", p.TestType))
		}
		if !validRounding(p.RangeRounding) {
			errs = append(errs, fmt.Sprintf("%s: unknown range_rounding %q", p.TestType, p.RangeRounding))
		}
		for _, s := range p.Sections {
			key := sectionKey(p.TestType, s.Name)
			if sections[key] {
				errs = append(errs, fmt.Sprintf("%s: duplicate section %q", p.TestType, s.Name))
			}
			sections[key] = true
			errs = append(errs, validateSection(p.TestType, &s)...)
		}
	}

	for _, sk := range c.Skills {
		if !sections[sectionKey(sk.TestType, sk.Section)] {
			errs = append(errs, fmt.Sprintf("skill %q references unknown section %s/%s", sk.Name, sk.TestType, sk.Section))
		}
		for _, ex := range sk.Examples {
			if !ex.Difficulty.Valid() {
				errs = append(errs, fmt.Sprintf("skill %q: example difficulty %d out of range", sk.Name, ex.Difficulty))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateSection(testType string, s *Section) []string {
	var errs []string
	where := testType + "/" + s.Name
	if s.Name == "" {
		errs = append(errs, testType+": section with empty name")
	}
	if s.TotalQuestions < 0 {
		errs = append(errs, where+": total_questions is negative")
	}
	if !s.ResponseType.Valid() {
		errs = append(errs, fmt.Sprintf("%s: unknown response_type %q", where, s.ResponseType))
	}
	if !validRounding(s.RangeRounding) {
		errs = append(errs, fmt.Sprintf("%s: unknown range_rounding %q", where, s.RangeRounding))
	}

	switch s.Strategy {
	case Standalone:
		if len(s.SubSkills) == 0 {
			errs = append(errs, where+": standalone section needs sub_skills")
		}
		for _, ss := range s.SubSkills {
			if ss.Name == "" {
				errs = append(errs, where+": sub-skill with empty name")
			}
			if ss.Count != nil && *ss.Count < 0 {
				errs = append(errs, fmt.Sprintf("%s: sub-skill %q has negative count", where, ss.Name))
			}
		}
	case PassageBased:
		if len(s.Distribution) == 0 {
			errs = append(errs, where+": passage_based section needs passage_distribution")
		}
		for i, g := range s.Distribution {
			if g.PassageType == "" {
				errs = append(errs, fmt.Sprintf("%s: passage_distribution[%d] has no passage_type", where, i))
			}
			if g.Count < 0 {
				errs = append(errs, fmt.Sprintf("%s: passage_distribution[%d] has negative count", where, i))
			}
			if g.QuestionsPerPassage.Min < 1 || g.QuestionsPerPassage.Min > g.QuestionsPerPassage.Max {
				errs = append(errs, fmt.Sprintf("%s: passage_distribution[%d] questions_per_passage %s is invalid", where, i, g.QuestionsPerPassage))
			}
			if len(g.SubSkills) == 0 {
				errs = append(errs, fmt.Sprintf("%s: passage_distribution[%d] has no sub_skills", where, i))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown generation_strategy %q", where, s.Strategy))
	}
	return errs
}

func validRounding(name string) bool {
	switch name {
	case "", "floor", "ceil":
		return true
	}
	return false
}
