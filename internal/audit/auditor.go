// Package audit implements the first stage of a healing cycle: sending
// each collected unit to the inference service and gathering structured
// findings plus the reasoning transcript per unit.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"sentinel/internal/jsonutil"
	"sentinel/internal/llm"
	"sentinel/internal/scan"
	"sentinel/internal/types"
)

const systemInstruction = `You are an elite security researcher performing a comprehensive code audit.
Analyse the provided source file and identify ALL security vulnerabilities,
including subtle logic flaws, injection vectors, authentication bypasses,
cryptographic weaknesses, and misconfigurations.

For each vulnerability return a JSON object with exactly these fields:
  - severity       (str): critical | high | medium | low | info
  - issue          (str): detailed technical description of the vulnerability,
                          exploit scenario, and impact
  - file_path      (str): the relative file path provided to you
  - line_number    (int): exact line number of the vulnerability
  - fix_suggestion (str): concise, actionable remediation

Return ONLY a valid JSON array of objects. If the file is clean, return [].`

// Auditor scans units one at a time, pacing between calls to respect
// requests-per-minute limits. Per-unit failures produce zero findings
// and never abort the scan.
type Auditor struct {
	Client  llm.Client
	Retrier *llm.Retrier
	Log     hclog.Logger
	// Pace is the sleep before every call except the first.
	Pace  time.Duration
	Sleep llm.SleepFunc
}

func NewAuditor(client llm.Client, retrier *llm.Retrier, log hclog.Logger) *Auditor {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Auditor{
		Client:  client,
		Retrier: retrier,
		Log:     log.Named("auditor"),
		Pace:    time.Second,
		Sleep:   llm.CtxSleep,
	}
}

// Report bundles the findings with the per-unit reasoning transcripts
// captured during the scan. Transcripts are keyed by unit path.
type Report struct {
	Result      types.AuditResult
	Transcripts map[string]types.Transcript
}

// Run scans every unit in order. Units are expected pre-sorted by the
// collector; the order is preserved so results are deterministic.
func (a *Auditor) Run(ctx context.Context, root string, units []scan.Unit) (*Report, error) {
	report := &Report{
		Result: types.AuditResult{
			ScannedFiles:   len(units),
			RepositoryPath: root,
		},
		Transcripts: make(map[string]types.Transcript, len(units)),
	}

	a.Log.Info("audit started", "units", len(units), "root", root)

	for i, unit := range units {
		if i > 0 {
			if err := a.sleep(ctx, a.Pace); err != nil {
				return nil, err
			}
		}

		findings, transcript, err := a.auditUnit(ctx, unit)
		if err != nil {
			// Contained: one unreachable unit yields zero findings.
			a.Log.Error("unit audit failed", "unit", unit.Path, "error", err)
			continue
		}
		report.Result.Vulnerabilities = append(report.Result.Vulnerabilities, findings...)
		report.Transcripts[unit.Path] = transcript
	}

	a.Log.Info("audit complete",
		"findings", len(report.Result.Vulnerabilities), "units", len(units))
	return report, nil
}

func (a *Auditor) auditUnit(ctx context.Context, unit scan.Unit) ([]types.Finding, types.Transcript, error) {
	req := llm.Request{
		Prompt:          buildPrompt(unit),
		System:          systemInstruction,
		JSONResponse:    true,
		IncludeThoughts: true,
	}

	res, err := a.Retrier.Invoke(ctx, func(ctx context.Context, model string) (*llm.Result, error) {
		return a.Client.Generate(ctx, model, req, nil)
	})
	if err != nil {
		return nil, types.Transcript{}, err
	}

	transcript := types.Transcript{Unit: unit.Path, Text: res.Reasoning}
	for _, th := range res.Thoughts {
		if len(th.Signature) == 0 {
			continue
		}
		transcript.Signatures = append(transcript.Signatures,
			types.NewThoughtSignature(th.Text, th.Signature))
	}

	findings := a.parseFindings(res.Text, unit.Path)
	return findings, transcript, nil
}

// buildPrompt numbers every line so the model can report exact
// locations.
func buildPrompt(unit scan.Unit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## File: `%s`\n```\n", unit.Path)
	for i, line := range strings.Split(unit.Content, "\n") {
		fmt.Fprintf(&b, "%d: %s\n", i+1, line)
	}
	b.WriteString("```\n\nAnalyse this file for security vulnerabilities.")
	return b.String()
}

// looseFinding is the tolerant intermediate decode shape: every field
// optional, coerced into the strict Finding afterwards.
type looseFinding struct {
	Severity      string          `json:"severity"`
	Issue         string          `json:"issue"`
	FilePath      string          `json:"file_path"`
	LineNumber    json.RawMessage `json:"line_number"`
	FixSuggestion string          `json:"fix_suggestion"`
}

// parseFindings decodes the model's JSON in two steps: loose parse
// first (array or single object), then per-field validation with
// defaulting. Malformed payloads degrade to zero findings.
func (a *Auditor) parseFindings(raw string, unitPath string) []types.Finding {
	data := []byte(strings.TrimSpace(raw))
	if len(data) == 0 {
		return nil
	}

	var items []looseFinding
	if err := jsonutil.UnmarshalFlex(data, &items); err != nil {
		// The model may return a single object instead of an array.
		var single looseFinding
		if err2 := jsonutil.UnmarshalFlex(data, &single); err2 != nil {
			a.Log.Error("malformed findings payload", "unit", unitPath, "error", err)
			return nil
		}
		items = []looseFinding{single}
	}

	var findings []types.Finding
	for _, item := range items {
		if strings.TrimSpace(item.Issue) == "" {
			a.Log.Warn("skipping finding without issue text", "unit", unitPath)
			continue
		}
		f := types.Finding{
			Severity:      types.NormalizeSeverity(item.Severity),
			Issue:         item.Issue,
			FilePath:      item.FilePath,
			LineNumber:    parseLine(item.LineNumber),
			FixSuggestion: item.FixSuggestion,
		}
		if f.FilePath == "" {
			// The model omitted the path; default to the unit it came from.
			f.FilePath = unitPath
		}
		findings = append(findings, f)
	}
	return findings
}

// parseLine accepts a JSON number or numeric string; anything else
// defaults to line 1.
func parseLine(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 1
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

func (a *Auditor) sleep(ctx context.Context, d time.Duration) error {
	if a.Sleep != nil {
		return a.Sleep(ctx, d)
	}
	return llm.CtxSleep(ctx, d)
}
