// Package blueprint loads the section blueprints and the sub-skill
// calibration bank from a YAML catalog.
package blueprint

import (
	"embed"
	"fmt"
	"os"

	"github.com/abhisek/qbankgen/internal/bank"
	"gopkg.in/yaml.v3"
)

// CatalogEnv names the environment variable that overrides the embedded
// catalog with a file path.
const CatalogEnv = "QBANK_CATALOG"

//go:embed defaults.yaml
var defaultsFS embed.FS

// Strategy is how a section's questions are produced.
type Strategy string

const (
	Standalone   Strategy = "standalone"
	PassageBased Strategy = "passage_based"
)

// Catalog is the read-only blueprint source: every product, its sections
// and the calibration examples per sub-skill.
type Catalog struct {
	Version  string    `yaml:"version"`
	Products []Product `yaml:"products"`
	Skills   []Skill   `yaml:"skills"`

	sections map[string]*Section
	skills   map[string]*Skill
}

// Product is one test product (test_type) with its delivery modes.
type Product struct {
	TestType      string          `yaml:"test_type"`
	Name          string          `yaml:"name"`
	Modes         []bank.TestMode `yaml:"modes"`
	RangeRounding string          `yaml:"range_rounding"`
	Sections      []Section       `yaml:"sections"`
}

// Section is the blueprint of one (product, section) pair.
type Section struct {
	TestType       string            `yaml:"-"`
	Name           string            `yaml:"name"`
	Strategy       Strategy          `yaml:"generation_strategy"`
	TotalQuestions int               `yaml:"total_questions"`
	ResponseType   bank.ResponseType `yaml:"response_type"`
	// RangeRounding names the policy used to resolve ranged
	// questions_per_passage values: "floor" (default) or "ceil".
	// Inherited from the product when empty.
	RangeRounding string         `yaml:"range_rounding"`
	SubSkills     []SubSkill     `yaml:"sub_skills"`
	Distribution  []PassageGroup `yaml:"passage_distribution"`
}

// SubSkill is a standalone section's sub-skill. A nil Count means the
// section total is split evenly across the sub-skills without one.
type SubSkill struct {
	Name  string `yaml:"name"`
	Count *int   `yaml:"count"`
}

// PassageGroup is one passage_distribution entry.
type PassageGroup struct {
	PassageType         string     `yaml:"passage_type"`
	Count               int        `yaml:"count"`
	QuestionsPerPassage PerPassage `yaml:"questions_per_passage"`
	SubSkills           []string   `yaml:"sub_skills"`
}

// Skill carries a sub-skill's description and calibration examples.
type Skill struct {
	TestType    string    `yaml:"test_type"`
	Section     string    `yaml:"section"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Examples    []Example `yaml:"examples"`
}

// Example is a worked example labelled with the difficulty it calibrates.
type Example struct {
	Difficulty  bank.Difficulty `yaml:"difficulty"`
	Question    string          `yaml:"question"`
	Options     []string        `yaml:"options"`
	Answer      string          `yaml:"answer"`
	Explanation string          `yaml:"explanation"`
}

// SubSkillNames returns the section's distinct sub-skills in the order
// they first appear.
func (s *Section) SubSkillNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	if s.Strategy == PassageBased {
		for _, g := range s.Distribution {
			for _, n := range g.SubSkills {
				add(n)
			}
		}
		return names
	}
	for _, ss := range s.SubSkills {
		add(ss.Name)
	}
	return names
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	data, err := defaultsFS.ReadFile("defaults.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded catalog: %w", err)
	}
	return Parse(data)
}

// Load reads the catalog at path. An empty path falls back to $QBANK_CATALOG
// and then to the embedded default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		path = os.Getenv(CatalogEnv)
	}
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.index()
	return &c, nil
}

func (c *Catalog) applyDefaults() {
	for pi := range c.Products {
		p := &c.Products[pi]
		for si := range p.Sections {
			s := &p.Sections[si]
			s.TestType = p.TestType
			if s.ResponseType == "" {
				s.ResponseType = bank.MultipleChoice
			}
			if s.RangeRounding == "" {
				s.RangeRounding = p.RangeRounding
			}
		}
	}
}

func (c *Catalog) index() {
	c.sections = make(map[string]*Section)
	c.skills = make(map[string]*Skill)
	for pi := range c.Products {
		p := &c.Products[pi]
		for si := range p.Sections {
			s := &p.Sections[si]
			c.sections[sectionKey(p.TestType, s.Name)] = s
		}
	}
	for i := range c.Skills {
		sk := &c.Skills[i]
		c.skills[skillKey(sk.TestType, sk.Section, sk.Name)] = sk
	}
}

// Product returns the product for testType.
func (c *Catalog) Product(testType string) (*Product, error) {
	for i := range c.Products {
		if c.Products[i].TestType == testType {
			return &c.Products[i], nil
		}
	}
	return nil, &bank.ErrUnknownSection{TestType: testType}
}

// Section returns the blueprint for (testType, section).
func (c *Catalog) Section(testType, section string) (*Section, error) {
	s, ok := c.sections[sectionKey(testType, section)]
	if !ok {
		return nil, &bank.ErrUnknownSection{TestType: testType, Section: section}
	}
	return s, nil
}

// Modes returns the test modes declared for testType.
func (c *Catalog) Modes(testType string) ([]bank.TestMode, error) {
	p, err := c.Product(testType)
	if err != nil {
		return nil, err
	}
	return p.Modes, nil
}

// Describe returns the sub-skill's description, or "" if the calibration
// bank has no entry for it.
func (c *Catalog) Describe(testType, section, subSkill string) string {
	if sk, ok := c.skills[skillKey(testType, section, subSkill)]; ok {
		return sk.Description
	}
	return ""
}

// Examples returns the calibration examples for a sub-skill at one
// difficulty level.
func (c *Catalog) Examples(testType, section, subSkill string, d bank.Difficulty) []Example {
	sk, ok := c.skills[skillKey(testType, section, subSkill)]
	if !ok {
		return nil
	}
	var out []Example
	for _, ex := range sk.Examples {
		if ex.Difficulty == d {
			out = append(out, ex)
		}
	}
	return out
}

func sectionKey(testType, section string) string {
	return testType + "\x00" + section
}

func skillKey(testType, section, name string) string {
	return testType + "\x00" + section + "\x00" + name
}
