package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"sentinel/internal/manifest"
)

func (s *Store) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS run_history (
  run_id TEXT PRIMARY KEY,
  repository TEXT NOT NULL DEFAULT '',
  recorded_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  scanned_files INTEGER NOT NULL DEFAULT 0,
  vulnerabilities_found INTEGER NOT NULL DEFAULT 0,
  vulnerabilities_healed INTEGER NOT NULL DEFAULT 0,
  manifest JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_history_recorded_at ON run_history (recorded_at);
`)
	})
	return s.schemaErr
}

func (s *Store) recordDB(ctx context.Context, run storedRun) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	raw, err := manifest.MarshalIndent(run.Manifest)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO run_history (
  run_id, repository, recorded_at, scanned_files,
  vulnerabilities_found, vulnerabilities_healed, manifest
)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (run_id)
DO UPDATE SET repository=EXCLUDED.repository,
  recorded_at=EXCLUDED.recorded_at,
  scanned_files=EXCLUDED.scanned_files,
  vulnerabilities_found=EXCLUDED.vulnerabilities_found,
  vulnerabilities_healed=EXCLUDED.vulnerabilities_healed,
  manifest=EXCLUDED.manifest`,
		run.Record.RunID,
		run.Record.Repository,
		run.Record.RecordedAt,
		run.Record.ScannedFiles,
		run.Record.VulnerabilitiesFound,
		run.Record.VulnerabilitiesHealed,
		string(raw),
	)
	return err
}

func (s *Store) getDB(ctx context.Context, runID string) (*manifest.Manifest, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(runID)
	if id == "" {
		return nil, ErrNotFound
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT manifest FROM run_history WHERE run_id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return manifest.Parse(raw)
}

func (s *Store) listDB(ctx context.Context) ([]RunRecord, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, repository, recorded_at, scanned_files,
  vulnerabilities_found, vulnerabilities_healed
FROM run_history ORDER BY recorded_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(
			&r.RunID, &r.Repository, &r.RecordedAt,
			&r.ScannedFiles, &r.VulnerabilitiesFound, &r.VulnerabilitiesHealed,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
