package lexical

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/noorlib/bahith/internal/cache"
)

const (
	indexedSetTTL  = 5 * time.Minute
	indexedSetKey  = "indexed-books"
	countBatchSize = 20
	countWorkers   = 8
)

// catalogSource is the slice of the repository the eligibility check needs.
type catalogSource interface {
	AllBookIDs(ctx context.Context) ([]int, error)
	PageCounts(ctx context.Context, ids []int) (map[int]int, error)
	HadithSourceBookIDs(ctx context.Context) ([]int, error)
}

// pageCounter counts a book's pages in the lexical index.
type pageCounter interface {
	PageCountForBook(ctx context.Context, bookID int) (int, error)
}

// vectorCounter counts a book's pages in the vector store.
type vectorCounter interface {
	PageCountForBook(bookID int) int
}

// IndexedSet caches the set of books fully present in both engines.
// Content-level search is restricted to these books; when the set cannot be
// computed the filter is disabled rather than guessed.
type IndexedSet struct {
	repo    catalogSource
	lexical pageCounter
	vector  vectorCounter
	cache   *cache.TTL[map[int]struct{}]
	logger  *slog.Logger

	mu         sync.Mutex
	refreshing bool
}

// NewIndexedSet wires the eligibility cache.
func NewIndexedSet(repo catalogSource, lexical pageCounter, vector vectorCounter) *IndexedSet {
	return &IndexedSet{
		repo:    repo,
		lexical: lexical,
		vector:  vector,
		cache:   cache.NewTTL[map[int]struct{}](indexedSetTTL, 2, 1),
		logger:  slog.Default().With("component", "indexed-set"),
	}
}

// Eligible returns the indexed-book set, recomputing it after the TTL.
// A nil return means "do not filter".
func (s *IndexedSet) Eligible(ctx context.Context) map[int]struct{} {
	if set, ok := s.cache.Get(indexedSetKey); ok {
		return set
	}

	// One refresh at a time; concurrent requests run unfiltered meanwhile.
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil
	}
	s.refreshing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	set, err := s.compute(ctx)
	if err != nil {
		s.logger.Warn("indexed-book set refresh failed, filter disabled", slog.String("error", err.Error()))
		return nil
	}

	s.cache.Set(indexedSetKey, set)
	return set
}

// compute intersects books whose lexical and vector page counts both reach
// the repository count, then unions the hadith-source allow-list.
func (s *IndexedSet) compute(ctx context.Context) (map[int]struct{}, error) {
	ids, err := s.repo.AllBookIDs(ctx)
	if err != nil {
		return nil, err
	}
	expected, err := s.repo.PageCounts(ctx, ids)
	if err != nil {
		return nil, err
	}

	set := make(map[int]struct{}, len(ids))
	var setMu sync.Mutex

	pool, err := ants.NewPool(countWorkers)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	// Count in concurrent batches so one slow book never serializes the
	// whole refresh.
	for start := 0; start < len(ids); start += countBatchSize {
		end := start + countBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			for _, id := range batch {
				want := expected[id]
				if want <= 0 {
					continue
				}
				lexCount, err := s.lexical.PageCountForBook(ctx, id)
				if err != nil {
					errMu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					errMu.Unlock()
					return
				}
				if lexCount < want || s.vector.PageCountForBook(id) < want {
					continue
				}
				setMu.Lock()
				set[id] = struct{}{}
				setMu.Unlock()
			}
		})
		if submitErr != nil {
			wg.Done()
			return nil, submitErr
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	// Hadith-source books are indexed per hadith, not per page; they are
	// always eligible.
	hadithIDs, err := s.repo.HadithSourceBookIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range hadithIDs {
		set[id] = struct{}{}
	}

	return set, nil
}
