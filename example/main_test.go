package main_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/peterldowns/singleton"
)

// corpus stands in for a resource that is slow to build and safe to share:
// a parsed dataset, a compiled ruleset, a warmed-up client, whatever your
// tests keep rebuilding today.
type corpus struct {
	lines []string
}

// corpusProvider is shared by every test in this package. The corpus is
// built at most once, by whichever parallel test asks for it first.
var corpusProvider = newCorpusProvider()

func newCorpusProvider() *singleton.Provider[*corpus] {
	p, err := singleton.New(context.Background(), singleton.ModeSafe,
		func(_ context.Context) (*corpus, error) {
			// Pretend this parses a large file from disk.
			time.Sleep(50 * time.Millisecond)
			return &corpus{lines: []string{"alpha", "beta", "gamma"}}, nil
		},
	)
	if err != nil {
		panic(err)
	}
	return p
}

// Corpus is the helper we expect you to wrap [singleton.Provider.Get] in:
// it hides the error handling so tests read cleanly.
func Corpus(t *testing.T) *corpus {
	t.Helper()
	c, err := corpusProvider.Get(context.Background())
	if err != nil {
		t.Fatalf("loading corpus: %s", err)
	}
	return c
}

func TestSearch(t *testing.T) {
	t.Parallel()
	c := Corpus(t)

	var found bool
	for _, line := range c.lines {
		if strings.HasPrefix(line, "be") {
			found = true
		}
	}
	check.Equal(t, true, found)
}

func TestCount(t *testing.T) {
	t.Parallel()
	c := Corpus(t)
	check.Equal(t, 3, len(c.lines))
}

func TestEveryTestSharesTheSameCorpus(t *testing.T) {
	t.Parallel()
	a := Corpus(t)
	b := Corpus(t)
	assert.Equal(t, true, a == b)
}
