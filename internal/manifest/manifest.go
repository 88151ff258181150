// Package manifest builds, persists and verifies the signed audit trail
// written at the end of every healing run.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sentinel/internal/types"
)

// FileName is the well-known manifest name inside a repository root.
const FileName = "run_manifest.json"

// Version identifies the producing orchestrator release.
const Version = "3.0.0"

// Signatures groups the reasoning signatures captured for one entry,
// keyed by the stage that produced them.
type Signatures struct {
	Auditor []types.ThoughtSignature `json:"auditor,omitempty"`
	Fixer   []types.ThoughtSignature `json:"fixer,omitempty"`
}

// Entry records one finding, its remediation outcome, and the signed
// reasoning that led to both.
type Entry struct {
	Vulnerability     types.Finding     `json:"vulnerability"`
	Patch             types.PatchResult `json:"patch"`
	Healed            bool              `json:"healed"`
	BackupPath        string            `json:"backup_path,omitempty"`
	ThoughtSignatures Signatures        `json:"thought_signatures"`
}

// Manifest is the full audit trail of one run. Written once, never
// amended.
type Manifest struct {
	SentinelVersion string  `json:"sentinel_version"`
	RunID           string  `json:"run_id"`
	Timestamp       string  `json:"timestamp"`
	Repository      string  `json:"repository"`
	Summary         Summary `json:"summary"`
	Entries         []Entry `json:"entries"`
}

type Summary struct {
	ScannedFiles          int `json:"scanned_files"`
	VulnerabilitiesFound  int `json:"vulnerabilities_found"`
	VulnerabilitiesHealed int `json:"vulnerabilities_healed"`
}

// Builder accumulates entries while a run progresses and freezes them
// into a Manifest at the end. Not safe for concurrent use; one builder
// belongs to exactly one run.
type Builder struct {
	runID      string
	repository string
	scanned    int
	entries    []Entry
	now        func() time.Time
}

func NewBuilder(runID, repository string) *Builder {
	return &Builder{runID: runID, repository: repository, now: time.Now}
}

func (b *Builder) SetScannedFiles(n int) { b.scanned = n }

// Add records one finding's outcome together with the stage transcripts.
func (b *Builder) Add(v types.Finding, patch types.PatchResult, healed bool, backupPath string, auditor, fixer types.Transcript) {
	b.entries = append(b.entries, Entry{
		Vulnerability: v,
		Patch:         patch,
		Healed:        healed,
		BackupPath:    backupPath,
		ThoughtSignatures: Signatures{
			Auditor: auditor.Signatures,
			Fixer:   fixer.Signatures,
		},
	})
}

// Build freezes the accumulated state into a Manifest.
func (b *Builder) Build() *Manifest {
	healed := 0
	for _, e := range b.entries {
		if e.Healed {
			healed++
		}
	}
	entries := b.entries
	if entries == nil {
		entries = []Entry{}
	}
	return &Manifest{
		SentinelVersion: Version,
		RunID:           b.runID,
		Timestamp:       b.now().UTC().Format(time.RFC3339),
		Repository:      b.repository,
		Summary: Summary{
			ScannedFiles:          b.scanned,
			VulnerabilitiesFound:  len(b.entries),
			VulnerabilitiesHealed: healed,
		},
		Entries: entries,
	}
}

// Write persists the manifest as pretty-printed JSON under the
// repository root.
func (m *Manifest) Write(root string) (string, error) {
	raw, err := MarshalIndent(m)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, FileName)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("manifest: write %s: %w", path, err)
	}
	return path, nil
}

// Load reads the manifest stored under the repository root.
func Load(root string) (*Manifest, error) {
	path := filepath.Join(root, FileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes manifest bytes.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := jsonUnmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if m.RunID == "" {
		return nil, errors.New("manifest: missing run_id")
	}
	return &m, nil
}

// Problem is one verification failure, addressed by entry index.
type Problem struct {
	Entry  int
	Stage  string
	Reason string
}

func (p Problem) String() string {
	return fmt.Sprintf("entry %d: %s: %s", p.Entry, p.Stage, p.Reason)
}

// Verify checks the integrity of the signed audit trail: every healed
// entry must carry at least one fixer signature, and every recorded
// signature must decode to non-empty bytes. It returns all problems
// found rather than stopping at the first.
func (m *Manifest) Verify() []Problem {
	var problems []Problem
	for i, e := range m.Entries {
		if e.Healed && len(e.ThoughtSignatures.Fixer) == 0 {
			problems = append(problems, Problem{
				Entry: i, Stage: "fixer", Reason: "healed entry has no reasoning signature",
			})
		}
		problems = append(problems, verifyStage(i, "auditor", e.ThoughtSignatures.Auditor)...)
		problems = append(problems, verifyStage(i, "fixer", e.ThoughtSignatures.Fixer)...)
	}
	healed := 0
	for _, e := range m.Entries {
		if e.Healed {
			healed++
		}
	}
	if m.Summary.VulnerabilitiesFound != len(m.Entries) {
		problems = append(problems, Problem{
			Entry: -1, Stage: "summary",
			Reason: fmt.Sprintf("vulnerabilities_found=%d but %d entries recorded",
				m.Summary.VulnerabilitiesFound, len(m.Entries)),
		})
	}
	if m.Summary.VulnerabilitiesHealed != healed {
		problems = append(problems, Problem{
			Entry: -1, Stage: "summary",
			Reason: fmt.Sprintf("vulnerabilities_healed=%d but %d entries healed",
				m.Summary.VulnerabilitiesHealed, healed),
		})
	}
	return problems
}

func verifyStage(idx int, stage string, sigs []types.ThoughtSignature) []Problem {
	var problems []Problem
	for j, s := range sigs {
		raw, err := s.DecodeSignature()
		if err != nil {
			problems = append(problems, Problem{
				Entry: idx, Stage: stage,
				Reason: fmt.Sprintf("signature %d is not valid base64: %v", j, err),
			})
			continue
		}
		if len(raw) == 0 {
			problems = append(problems, Problem{
				Entry: idx, Stage: stage,
				Reason: fmt.Sprintf("signature %d is empty", j),
			})
		}
	}
	return problems
}
