package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// State keys for the metadata store.
const (
	// StateKeyCorpusDimension stores the embedding dimension used by the corpus.
	StateKeyCorpusDimension = "corpus_embedding_dimension"
	// StateKeyCorpusModel stores the embedding model name used by the corpus.
	StateKeyCorpusModel = "corpus_embedding_model"
)

// MetadataStore persists segment metadata in SQLite.
type MetadataStore interface {
	// SaveSegments inserts or replaces segment records.
	SaveSegments(ctx context.Context, segments []*Segment) error

	// GetSegment returns one segment, or sql.ErrNoRows-wrapped error if absent.
	GetSegment(ctx context.Context, videoID string, segmentID int) (*Segment, error)

	// SegmentsByVideo returns all segments of a video ordered by segment index.
	SegmentsByVideo(ctx context.Context, videoID string) ([]*Segment, error)

	// CountSegments returns the total number of segments.
	CountSegments(ctx context.Context) (int, error)

	// CountVideos returns the number of distinct videos.
	CountVideos(ctx context.Context) (int, error)

	// ListVideos returns a summary of every indexed video, ordered by ID.
	ListVideos(ctx context.Context) ([]*VideoSummary, error)

	// State operations (key-value store for runtime state).
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error

	Close() error
}

// SQLiteMetadataStore implements MetadataStore on a SQLite database in WAL
// mode for concurrent access.
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// NewSQLiteMetadataStore opens (creating if needed) the metadata database.
// An empty path creates an in-memory store for testing.
func NewSQLiteMetadataStore(path string) (*SQLiteMetadataStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create metadata directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	s := &SQLiteMetadataStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying connection so sibling stores (telemetry) can
// share the same database file.
func (s *SQLiteMetadataStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteMetadataStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS segments (
		video_id   TEXT    NOT NULL,
		segment_id INTEGER NOT NULL,
		start_time REAL    NOT NULL,
		end_time   REAL    NOT NULL,
		media_uri  TEXT    NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (video_id, segment_id)
	);
	CREATE INDEX IF NOT EXISTS idx_segments_video ON segments(video_id);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate metadata schema: %w", err)
	}
	return nil
}

// SaveSegments inserts or replaces segment records in one transaction.
func (s *SQLiteMetadataStore) SaveSegments(ctx context.Context, segments []*Segment) error {
	if len(segments) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save segments: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO segments
			(video_id, segment_id, start_time, end_time, media_uri, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare save segments: %w", err)
	}
	defer stmt.Close()

	for _, seg := range segments {
		createdAt := seg.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			seg.VideoID, seg.SegmentID, seg.StartTime, seg.EndTime, seg.MediaURI, createdAt,
		); err != nil {
			return fmt.Errorf("save segment %s: %w", SegmentKey(seg.VideoID, seg.SegmentID), err)
		}
	}

	return tx.Commit()
}

// GetSegment returns one segment by identity.
func (s *SQLiteMetadataStore) GetSegment(ctx context.Context, videoID string, segmentID int) (*Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	seg := &Segment{}
	err := s.db.QueryRowContext(ctx, `
		SELECT video_id, segment_id, start_time, end_time, media_uri, created_at
		FROM segments WHERE video_id = ? AND segment_id = ?`,
		videoID, segmentID,
	).Scan(&seg.VideoID, &seg.SegmentID, &seg.StartTime, &seg.EndTime, &seg.MediaURI, &seg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get segment %s: %w", SegmentKey(videoID, segmentID), err)
	}
	return seg, nil
}

// SegmentsByVideo returns all segments of a video ordered by segment index.
func (s *SQLiteMetadataStore) SegmentsByVideo(ctx context.Context, videoID string) ([]*Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, segment_id, start_time, end_time, media_uri, created_at
		FROM segments WHERE video_id = ? ORDER BY segment_id`, videoID)
	if err != nil {
		return nil, fmt.Errorf("query segments for %s: %w", videoID, err)
	}
	defer rows.Close()

	var segments []*Segment
	for rows.Next() {
		seg := &Segment{}
		if err := rows.Scan(&seg.VideoID, &seg.SegmentID, &seg.StartTime, &seg.EndTime, &seg.MediaURI, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// CountSegments returns the total number of segments.
func (s *SQLiteMetadataStore) CountSegments(ctx context.Context) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(*) FROM segments`)
}

// CountVideos returns the number of distinct videos.
func (s *SQLiteMetadataStore) CountVideos(ctx context.Context) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(DISTINCT video_id) FROM segments`)
}

// ListVideos returns per-video summaries ordered by video ID.
func (s *SQLiteMetadataStore) ListVideos(ctx context.Context) ([]*VideoSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("metadata store is closed")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, COUNT(*), MAX(end_time), MAX(media_uri)
		FROM segments GROUP BY video_id ORDER BY video_id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []*VideoSummary
	for rows.Next() {
		v := &VideoSummary{}
		if err := rows.Scan(&v.VideoID, &v.SegmentCount, &v.Duration, &v.MediaURI); err != nil {
			return nil, fmt.Errorf("scan video summary: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (s *SQLiteMetadataStore) countQuery(ctx context.Context, query string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("metadata store is closed")
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetState returns the stored value for key, or empty string if unset.
func (s *SQLiteMetadataStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("metadata store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get state %s: %w", key, err)
	}
	return value, nil
}

// SetState stores a key-value pair.
func (s *SQLiteMetadataStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("metadata store is closed")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
