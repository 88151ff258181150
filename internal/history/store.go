// Package history keeps a queryable record of past healing runs. The
// default backend is a single JSON file; a Postgres backend is used when
// a DSN is configured. Both store the full manifest per run.
package history

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"sentinel/internal/manifest"
)

// ErrNotFound reports that no run with the requested ID is recorded.
var ErrNotFound = errors.New("history: run not found")

const cacheSize = 256

// RunRecord is the list-view projection of one recorded run.
type RunRecord struct {
	RunID                 string    `json:"run_id"`
	Repository            string    `json:"repository"`
	RecordedAt            time.Time `json:"recorded_at"`
	ScannedFiles          int       `json:"scanned_files"`
	VulnerabilitiesFound  int       `json:"vulnerabilities_found"`
	VulnerabilitiesHealed int       `json:"vulnerabilities_healed"`
}

type Store struct {
	path string
	db   *sql.DB

	loadOnce sync.Once
	mu       sync.RWMutex
	byID     map[string]storedRun

	schemaOnce sync.Once
	schemaErr  error

	manifestCache *lru.Cache[string, *manifest.Manifest]
}

type storedRun struct {
	Record   RunRecord          `json:"record"`
	Manifest *manifest.Manifest `json:"manifest"`
}

// New returns a file-backed store persisting to path.
func New(path string) *Store {
	cache, _ := lru.New[string, *manifest.Manifest](cacheSize)
	return &Store{
		path:          path,
		byID:          make(map[string]storedRun),
		manifestCache: cache,
	}
}

// NewPostgres returns a store backed by the given Postgres DSN.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, err := lru.New[string, *manifest.Manifest](cacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, manifestCache: cache}, nil
}

// NewFromEnv picks the backend: Postgres when SENTINEL_HISTORY_PG_DSN is
// set and reachable, the file at path otherwise.
func NewFromEnv(path string) *Store {
	dsn := strings.TrimSpace(os.Getenv("SENTINEL_HISTORY_PG_DSN"))
	if dsn == "" {
		return New(path)
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		return New(path)
	}
	return s
}

// Record stores the manifest of a finished run.
func (s *Store) Record(ctx context.Context, m *manifest.Manifest) error {
	if s == nil || m == nil {
		return nil
	}
	run := storedRun{Record: toRecord(m), Manifest: m}
	var err error
	if s.db != nil {
		err = s.recordDB(ctx, run)
	} else {
		err = s.recordFile(run)
	}
	if err == nil && s.manifestCache != nil {
		s.manifestCache.Add(m.RunID, m)
	}
	return err
}

// Get returns the full manifest of one recorded run.
func (s *Store) Get(ctx context.Context, runID string) (*manifest.Manifest, error) {
	if s == nil {
		return nil, ErrNotFound
	}
	if s.manifestCache != nil {
		if m, ok := s.manifestCache.Get(runID); ok {
			return m, nil
		}
	}
	var (
		m   *manifest.Manifest
		err error
	)
	if s.db != nil {
		m, err = s.getDB(ctx, runID)
	} else {
		m, err = s.getFile(runID)
	}
	if err != nil {
		return nil, err
	}
	if s.manifestCache != nil {
		s.manifestCache.Add(runID, m)
	}
	return m, nil
}

// List returns all recorded runs, most recent first.
func (s *Store) List(ctx context.Context) ([]RunRecord, error) {
	if s == nil {
		return nil, nil
	}
	if s.db != nil {
		return s.listDB(ctx)
	}
	return s.listFile()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toRecord(m *manifest.Manifest) RunRecord {
	recordedAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, m.Timestamp); err == nil {
		recordedAt = ts
	}
	return RunRecord{
		RunID:                 m.RunID,
		Repository:            m.Repository,
		RecordedAt:            recordedAt,
		ScannedFiles:          m.Summary.ScannedFiles,
		VulnerabilitiesFound:  m.Summary.VulnerabilitiesFound,
		VulnerabilitiesHealed: m.Summary.VulnerabilitiesHealed,
	}
}
