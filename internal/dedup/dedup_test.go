package dedup

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"What is 2 + 2?", "what is 2 + 2"},
		{"  What   is\t2 + 2 ?  ", "what is 2 + 2"},
		{"WHAT IS 2 + 2", "what is 2 + 2"},
		{"Line one\nline two.", "line one line two"},
		{"", ""},
		{"?!", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}

func TestIsDuplicate(t *testing.T) {
	existing := []string{"Which word means 'happy'?", "Find the area of a 3 by 4 rectangle."}

	assert.True(t, IsDuplicate("which word means 'happy'", existing))
	assert.True(t, IsDuplicate("Find the  area of a 3 by 4 rectangle", existing))
	assert.False(t, IsDuplicate("Which word means 'sad'?", existing))
	assert.False(t, IsDuplicate("", existing))
	assert.False(t, IsDuplicate("anything", nil))
}

func TestGuard_CheckAndAdd(t *testing.T) {
	g := NewGuard("selective/reading/inference/*", []string{"Why did Tom leave?", "why did tom leave"})
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, "selective/reading/inference/*", g.Scope())

	assert.True(t, g.Check("WHY did Tom leave ?"))
	assert.False(t, g.Check("Why did Ana stay?"))

	g.Add("Why did Ana stay?")
	assert.True(t, g.Check("why did ana stay"))
	assert.Equal(t, 2, g.Len())
}

func TestGuard_Recent(t *testing.T) {
	var history []string
	for i := range 20 {
		history = append(history, fmt.Sprintf("question %d", i))
	}
	g := NewGuard("s", history)

	recent := g.Recent(DefaultRecent)
	assert.Len(t, recent, DefaultRecent)
	assert.Equal(t, "question 5", recent[0])
	assert.Equal(t, "question 19", recent[len(recent)-1])

	assert.Len(t, g.Recent(100), 20)
	assert.Nil(t, g.Recent(0))
	assert.Nil(t, NewGuard("empty", nil).Recent(5))
}

func TestGuard_ConcurrentAdds(t *testing.T) {
	g := NewGuard("s", nil)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Add(fmt.Sprintf("q%d", i%10))
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, g.Len())
}

func TestNegativeExamples(t *testing.T) {
	got := NegativeExamples([]string{"A?", "B?"}, []string{"a", "C?"})
	assert.Equal(t, []string{"A?", "B?", "C?"}, got)
	assert.Nil(t, NegativeExamples(nil, nil))
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "None", FormatList(nil))
	assert.Equal(t, "1. first\n2. second", FormatList([]string{"first", "second"}))
}
