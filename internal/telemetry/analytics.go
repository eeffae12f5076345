package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// emitTimeout bounds the detached write so a wedged disk cannot pile up
// goroutines forever.
const emitTimeout = 5 * time.Second

// AnalyticsSink persists search events to a local sqlite database. Writes
// are fire-and-forget: Emit returns before the insert and failures only
// log.
type AnalyticsSink struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenAnalytics opens (or creates) the sink database. Path ":memory:" is
// used by tests.
func OpenAnalytics(path string) (*AnalyticsSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open analytics db: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS search_events (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		mode TEXT NOT NULL,
		refined INTEGER NOT NULL DEFAULT 0,
		result_count INTEGER NOT NULL,
		ayah_count INTEGER NOT NULL,
		hadith_count INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_search_events_created ON search_events(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create analytics schema: %w", err)
	}

	return &AnalyticsSink{db: db, logger: slog.Default().With("component", "analytics")}, nil
}

// Close closes the database.
func (s *AnalyticsSink) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Emit writes the event on a detached goroutine. The response never waits
// on it.
func (s *AnalyticsSink) Emit(ev QueryEvent) {
	if s == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()

		_, err := s.db.ExecContext(ctx, `
			INSERT INTO search_events (id, query, mode, refined, result_count, ayah_count, hadith_count, latency_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), ev.Query, ev.Mode, ev.Refined,
			ev.ResultCount, ev.AyahCount, ev.HadithCount, ev.Latency.Milliseconds())
		if err != nil {
			s.logger.Warn("analytics write failed", slog.String("error", err.Error()))
		}
	}()
}

// Count reports stored events; used by tests.
func (s *AnalyticsSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_events`).Scan(&n)
	return n, err
}
