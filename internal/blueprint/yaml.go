package blueprint

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PerPassage is a questions_per_passage value: either a fixed count
// (Min == Max) or an inclusive [Min, Max] range.
type PerPassage struct {
	Min int
	Max int
}

// Fixed returns a fixed per-passage count.
func Fixed(n int) PerPassage { return PerPassage{Min: n, Max: n} }

// Range returns a ranged per-passage count.
func Range(min, max int) PerPassage { return PerPassage{Min: min, Max: max} }

// IsRange reports whether the value is a range rather than a fixed count.
func (p PerPassage) IsRange() bool { return p.Min != p.Max }

func (p PerPassage) String() string {
	if p.IsRange() {
		return fmt.Sprintf("[%d,%d]", p.Min, p.Max)
	}
	return fmt.Sprintf("%d", p.Min)
}

// UnmarshalYAML accepts `7` or `[6, 8]`.
func (p *PerPassage) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var n int
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("line %d: questions_per_passage: %w", node.Line, err)
		}
		*p = Fixed(n)
		return nil
	case yaml.SequenceNode:
		var r []int
		if err := node.Decode(&r); err != nil {
			return fmt.Errorf("line %d: questions_per_passage: %w", node.Line, err)
		}
		if len(r) != 2 {
			return fmt.Errorf("line %d: questions_per_passage range needs exactly 2 values, got %d", node.Line, len(r))
		}
		*p = Range(r[0], r[1])
		return nil
	}
	return fmt.Errorf("line %d: questions_per_passage must be an integer or a [min, max] pair", node.Line)
}

func (p PerPassage) MarshalYAML() (any, error) {
	if p.IsRange() {
		return []int{p.Min, p.Max}, nil
	}
	return p.Min, nil
}

// UnmarshalYAML accepts a bare name or a {name, count} mapping.
func (s *SubSkill) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Name = node.Value
		s.Count = nil
		return nil
	}
	type plain SubSkill
	var v plain
	if err := node.Decode(&v); err != nil {
		return err
	}
	*s = SubSkill(v)
	return nil
}
