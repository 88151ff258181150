// Package orchestrator drives a complete healing cycle: collect units,
// audit them, generate and apply patches, then persist the signed
// manifest. It owns the run lifecycle and all per-run state.
package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"sentinel/internal/audit"
	"sentinel/internal/fix"
	"sentinel/internal/llm"
	"sentinel/internal/manifest"
	"sentinel/internal/patch"
	"sentinel/internal/safeio"
	"sentinel/internal/scan"
	"sentinel/internal/types"
)

// Stage is the externally observable phase of a run.
type Stage string

const (
	StageNotStarted Stage = "not_started"
	StageAuditing   Stage = "auditing"
	StageFixing     Stage = "fixing"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ReasoningEvent is one chunk of model reasoning surfaced while a run
// is in flight.
type ReasoningEvent struct {
	Stage Stage  `json:"stage"`
	Index int    `json:"index"`
	File  string `json:"file"`
	Text  string `json:"text"`
}

// Hooks are optional run observers. Both callbacks are invoked from the
// run's goroutine; implementations must not block.
type Hooks struct {
	OnStage     func(Stage)
	OnReasoning func(ReasoningEvent)
}

// Recorder persists finished manifests to the history store.
type Recorder interface {
	Record(ctx context.Context, m *manifest.Manifest) error
}

// Archiver ships finished manifests to long-term artifact storage.
type Archiver interface {
	Upload(ctx context.Context, m *manifest.Manifest) error
}

// NewRunID returns a short random run identifier.
func NewRunID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])[:12]
}

// Orchestrator wires the stages together. Recorder and Archiver are
// optional; when set, their failures are logged and never fail the run.
type Orchestrator struct {
	Collector *scan.Collector
	Auditor   *audit.Auditor
	Fixer     *fix.Fixer
	Log       hclog.Logger

	// Pace is the sleep between consecutive patch generations.
	Pace  time.Duration
	Sleep llm.SleepFunc

	Recorder Recorder
	Archiver Archiver
	Hooks    Hooks
}

func New(collector *scan.Collector, auditor *audit.Auditor, fixer *fix.Fixer, log hclog.Logger) *Orchestrator {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Orchestrator{
		Collector: collector,
		Auditor:   auditor,
		Fixer:     fixer,
		Log:       log.Named("orchestrator"),
		Pace:      time.Second,
		Sleep:     llm.CtxSleep,
	}
}

// Run executes one healing cycle over root and returns its summary.
// The manifest is written under root even when individual findings
// fail; only scan-level errors (unreadable root, canceled context)
// abort the run.
func (o *Orchestrator) Run(ctx context.Context, root string) (*types.CycleSummary, error) {
	return o.RunWithID(ctx, NewRunID(), root)
}

// RunWithID is Run with a caller-chosen run identifier, for callers
// that hand the ID out before the cycle starts.
func (o *Orchestrator) RunWithID(ctx context.Context, runID, root string) (*types.CycleSummary, error) {
	log := o.Log.With("run_id", runID)

	if o.Auditor.Retrier != nil {
		o.Auditor.Retrier.Models.Reset()
	}
	if o.Fixer.Retrier != nil {
		o.Fixer.Retrier.Models.Reset()
	}

	fs, err := safeio.NewSafeFS(root)
	if err != nil {
		o.setStage(StageFailed)
		return nil, err
	}

	o.setStage(StageAuditing)
	log.Info("healing cycle started", "root", fs.Root())

	units, err := o.Collector.Collect(fs.Root())
	if err != nil {
		o.setStage(StageFailed)
		return nil, err
	}

	report, err := o.Auditor.Run(ctx, fs.Root(), units)
	if err != nil {
		o.setStage(StageFailed)
		return nil, err
	}

	builder := manifest.NewBuilder(runID, fs.Root())
	builder.SetScannedFiles(report.Result.ScannedFiles)

	findings := report.Result.Vulnerabilities
	if len(findings) == 0 {
		log.Info("no vulnerabilities found, nothing to heal")
		m := builder.Build()
		o.finish(ctx, fs.Root(), m, log)
		o.setStage(StageDone)
		return summarize(m), nil
	}

	o.setStage(StageFixing)
	guard := patch.NewGuard(fs, log)

	for i, v := range findings {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				o.setStage(StageFailed)
				return nil, err
			}
			if err := o.sleep(ctx, o.Pace); err != nil {
				o.setStage(StageFailed)
				return nil, err
			}
		}

		res, fixerTranscript, backup := o.heal(ctx, guard, fs, i, v)
		healed := res.Success && backup != ""
		builder.Add(v, res, healed, backup, report.Transcripts[v.FilePath], fixerTranscript)
	}

	m := builder.Build()
	o.finish(ctx, fs.Root(), m, log)
	o.setStage(StageDone)

	log.Info("healing cycle complete",
		"found", m.Summary.VulnerabilitiesFound, "healed", m.Summary.VulnerabilitiesHealed)
	return summarize(m), nil
}

// heal processes one finding end to end. A panic inside patch
// generation or application is contained to this finding.
func (o *Orchestrator) heal(ctx context.Context, guard *patch.Guard, fs *safeio.SafeFS, idx int, v types.Finding) (res types.PatchResult, transcript types.Transcript, backup string) {
	defer func() {
		if r := recover(); r != nil {
			o.Log.Error("finding processing panicked", "file", v.FilePath, "panic", r)
			res = types.PatchResult{
				FilePath: v.FilePath,
				Success:  false,
				Message:  fmt.Sprintf("Internal error: %v", r),
			}
			backup = ""
		}
	}()

	// Read the current on-disk content rather than the scanned snapshot:
	// an earlier finding in this run may already have rewritten the file.
	original, err := fs.SafeReadFile(v.FilePath)
	if err != nil {
		o.Log.Error("cannot read unit for patching", "file", v.FilePath, "error", err)
		return types.PatchResult{
			FilePath: v.FilePath,
			Success:  false,
			Message:  fmt.Sprintf("Cannot read file: %v", err),
		}, types.Transcript{}, ""
	}

	var onThinking func(string)
	if o.Hooks.OnReasoning != nil {
		onThinking = func(text string) {
			o.Hooks.OnReasoning(ReasoningEvent{
				Stage: StageFixing, Index: idx, File: v.FilePath, Text: text,
			})
		}
	}

	res, transcript = o.Fixer.GeneratePatch(ctx, v, string(original), onThinking)
	if !res.Success {
		return res, transcript, ""
	}

	backup, err = guard.Apply(ctx, v.FilePath, res.FixedCode)
	if err != nil {
		o.Log.Error("patch application failed", "file", v.FilePath, "error", err)
		res.Success = false
		res.Message = fmt.Sprintf("Patch generated but could not be applied: %v", err)
		return res, transcript, ""
	}
	return res, transcript, backup
}

// finish persists the manifest and fans it out to the optional sinks.
// All of it is best effort: the cycle result stands even when a sink is
// down.
func (o *Orchestrator) finish(ctx context.Context, root string, m *manifest.Manifest, log hclog.Logger) {
	if path, err := m.Write(root); err != nil {
		log.Error("manifest write failed", "error", err)
	} else {
		log.Info("manifest written", "path", path)
	}
	if o.Recorder != nil {
		if err := o.Recorder.Record(ctx, m); err != nil {
			log.Error("history record failed", "error", err)
		}
	}
	if o.Archiver != nil {
		if err := o.Archiver.Upload(ctx, m); err != nil {
			log.Error("artifact upload failed", "error", err)
		}
	}
}

func (o *Orchestrator) setStage(s Stage) {
	if o.Hooks.OnStage != nil {
		o.Hooks.OnStage(s)
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return llm.CtxSleep(ctx, d)
}

func summarize(m *manifest.Manifest) *types.CycleSummary {
	s := &types.CycleSummary{
		RunID:                 m.RunID,
		RepositoryPath:        m.Repository,
		ScannedFiles:          m.Summary.ScannedFiles,
		VulnerabilitiesFound:  m.Summary.VulnerabilitiesFound,
		VulnerabilitiesHealed: m.Summary.VulnerabilitiesHealed,
		Entries:               make([]types.HealingEntry, 0, len(m.Entries)),
	}
	for _, e := range m.Entries {
		entry := types.HealingEntry{
			Vulnerability: e.Vulnerability,
			Patch:         e.Patch,
			Healed:        e.Healed,
		}
		if len(e.ThoughtSignatures.Auditor) > 0 {
			entry.AuditorThought = e.ThoughtSignatures.Auditor[0].ThoughtText
		}
		if len(e.ThoughtSignatures.Fixer) > 0 {
			entry.FixerThought = e.ThoughtSignatures.Fixer[0].ThoughtText
		}
		s.Entries = append(s.Entries, entry)
	}
	return s
}
