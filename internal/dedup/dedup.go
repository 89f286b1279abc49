// Package dedup keeps generated questions unique within a
// (test type, section, sub-skill) scope.
//
// Exact matches on normalized text are caught in-process against the full
// history. Near-duplicates are left to the model: a bounded sample of recent
// texts is placed in the prompt as negative examples.
package dedup

import (
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// DefaultRecent is the number of prior texts sampled into prompts.
const DefaultRecent = 15

// Normalize case-folds text, collapses runs of whitespace and drops
// trailing punctuation, so that "What is  2+2 ?" and "what is 2+2?" match.
func Normalize(text string) string {
	fields := strings.Fields(strings.ToLower(text))
	s := strings.Join(fields, " ")
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	return s
}

// IsDuplicate reports whether candidate matches any of existing after
// normalization. An empty candidate is never a duplicate.
func IsDuplicate(candidate string, existing []string) bool {
	c := Normalize(candidate)
	if c == "" {
		return false
	}
	for _, e := range existing {
		if Normalize(e) == c {
			return true
		}
	}
	return false
}

// Guard holds the full history of one scope. It is safe for concurrent use,
// although the orchestrator issues requests for one scope sequentially so
// that each check sees the previous acceptance.
type Guard struct {
	mu     sync.Mutex
	scope  string
	seen   map[string]struct{}
	recent []string
}

// NewGuard builds a guard from history, oldest first.
func NewGuard(scope string, history []string) *Guard {
	g := &Guard{scope: scope, seen: make(map[string]struct{}, len(history))}
	for _, h := range history {
		g.add(h)
	}
	return g
}

// Scope returns the label the guard was built for.
func (g *Guard) Scope() string { return g.scope }

// Check returns true if text duplicates something already in the guard.
func (g *Guard) Check(text string) bool {
	n := Normalize(text)
	if n == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, dup := g.seen[n]
	return dup
}

// Add records an accepted text. Adding a duplicate is a no-op.
func (g *Guard) Add(text string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.add(text)
}

func (g *Guard) add(text string) {
	n := Normalize(text)
	if n == "" {
		return
	}
	if _, ok := g.seen[n]; ok {
		return
	}
	g.seen[n] = struct{}{}
	g.recent = append(g.recent, text)
}

// Len returns the number of distinct texts held.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// Recent returns up to n of the most recently added texts, oldest first.
func (g *Guard) Recent(n int) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n <= 0 || len(g.recent) == 0 {
		return nil
	}
	start := max(len(g.recent)-n, 0)
	out := make([]string, len(g.recent)-start)
	copy(out, g.recent[start:])
	return out
}

// NegativeExamples merges the recent sample with texts rejected during the
// current request, dropping repeats.
func NegativeExamples(recent, rejected []string) []string {
	seen := make(map[string]bool, len(recent)+len(rejected))
	var out []string
	for _, list := range [][]string{recent, rejected} {
		for _, t := range list {
			n := Normalize(t)
			if n == "" || seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, t)
		}
	}
	return out
}

// FormatList renders texts as a numbered prompt block, or "None".
func FormatList(texts []string) string {
	if len(texts) == 0 {
		return "None"
	}
	var b strings.Builder
	for i, t := range texts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, t)
	}
	return strings.TrimRight(b.String(), "\n")
}
