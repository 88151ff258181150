package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sentinel/internal/manifest"
)

func (s *Store) ensureLoadedFile() {
	s.loadOnce.Do(func() {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return
		}
		var rows []storedRun
		if err := json.Unmarshal(b, &rows); err != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, row := range rows {
			id := strings.TrimSpace(row.Record.RunID)
			if id == "" {
				continue
			}
			s.byID[id] = row
		}
	})
}

func (s *Store) saveFile() error {
	s.mu.RLock()
	rows := make([]storedRun, 0, len(s.byID))
	for _, run := range s.byID {
		rows = append(rows, run)
	}
	s.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Record.RecordedAt.Before(rows[j].Record.RecordedAt)
	})

	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	return os.WriteFile(s.path, b, 0o644)
}

func (s *Store) recordFile(run storedRun) error {
	s.ensureLoadedFile()
	if run.Record.RunID == "" {
		return nil
	}
	s.mu.Lock()
	s.byID[run.Record.RunID] = run
	s.mu.Unlock()
	return s.saveFile()
}

func (s *Store) getFile(runID string) (*manifest.Manifest, error) {
	s.ensureLoadedFile()
	id := strings.TrimSpace(runID)
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	run, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok || run.Manifest == nil {
		return nil, ErrNotFound
	}
	return run.Manifest, nil
}

func (s *Store) listFile() ([]RunRecord, error) {
	s.ensureLoadedFile()
	s.mu.RLock()
	out := make([]RunRecord, 0, len(s.byID))
	for _, run := range s.byID {
		out = append(out, run.Record)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].RecordedAt.After(out[j].RecordedAt)
	})
	return out, nil
}
