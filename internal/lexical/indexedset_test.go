package lexical

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	ids       []int
	counts    map[int]int
	hadithIDs []int
	fail      bool
}

func (f *fakeCatalog) AllBookIDs(context.Context) ([]int, error) {
	if f.fail {
		return nil, errors.New("db down")
	}
	return f.ids, nil
}

func (f *fakeCatalog) PageCounts(context.Context, []int) (map[int]int, error) {
	return f.counts, nil
}

func (f *fakeCatalog) HadithSourceBookIDs(context.Context) ([]int, error) {
	return f.hadithIDs, nil
}

type fakeLexCounter struct {
	counts map[int]int
}

func (f *fakeLexCounter) PageCountForBook(_ context.Context, bookID int) (int, error) {
	return f.counts[bookID], nil
}

type fakeVecCounter struct {
	counts map[int]int
}

func (f *fakeVecCounter) PageCountForBook(bookID int) int {
	return f.counts[bookID]
}

func TestIndexedSetIntersection(t *testing.T) {
	repo := &fakeCatalog{
		ids:       []int{1, 2, 3, 4},
		counts:    map[int]int{1: 10, 2: 10, 3: 10, 4: 10},
		hadithIDs: []int{100},
	}
	lex := &fakeLexCounter{counts: map[int]int{1: 10, 2: 10, 3: 4, 4: 10}}
	vec := &fakeVecCounter{counts: map[int]int{1: 10, 2: 3, 3: 10, 4: 10}}

	s := NewIndexedSet(repo, lex, vec)
	set := s.Eligible(context.Background())
	require.NotNil(t, set)

	// Book 2 is short in the vector store, book 3 in the lexical index.
	assert.Contains(t, set, 1)
	assert.NotContains(t, set, 2)
	assert.NotContains(t, set, 3)
	assert.Contains(t, set, 4)

	// The hadith-source allow-list is always unioned in.
	assert.Contains(t, set, 100)
}

func TestIndexedSetFailureDisablesFilter(t *testing.T) {
	repo := &fakeCatalog{fail: true}
	s := NewIndexedSet(repo, &fakeLexCounter{}, &fakeVecCounter{})

	assert.Nil(t, s.Eligible(context.Background()))
}

func TestIndexedSetCached(t *testing.T) {
	repo := &fakeCatalog{
		ids:    []int{1},
		counts: map[int]int{1: 2},
	}
	lex := &fakeLexCounter{counts: map[int]int{1: 2}}
	vec := &fakeVecCounter{counts: map[int]int{1: 2}}

	s := NewIndexedSet(repo, lex, vec)
	first := s.Eligible(context.Background())
	require.Contains(t, first, 1)

	// A later change is invisible until the TTL expires.
	lex.counts[1] = 0
	second := s.Eligible(context.Background())
	assert.Contains(t, second, 1)
}
