package types

import "strings"

// Severity classifies how serious a finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// NormalizeSeverity maps free-form model output onto the known levels.
// Unknown values default to "info".
func NormalizeSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Finding is a single security issue discovered by the auditor stage.
// Immutable once produced; several findings may point at the same file.
type Finding struct {
	Severity      Severity `json:"severity"`
	Issue         string   `json:"issue"`
	FilePath      string   `json:"file_path"`
	LineNumber    int      `json:"line_number"`
	FixSuggestion string   `json:"fix_suggestion"`
}

// AuditResult is the complete output of one auditor pass.
type AuditResult struct {
	Vulnerabilities []Finding `json:"vulnerabilities"`
	ScannedFiles    int       `json:"scanned_files"`
	RepositoryPath  string    `json:"repository_path"`
}

// PatchResult is the outcome of one remediation attempt for one finding.
// Never mutated after creation.
type PatchResult struct {
	FilePath     string `json:"file_path"`
	OriginalCode string `json:"original_code"`
	FixedCode    string `json:"fixed_code"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	Model        string `json:"model"`
}

// HealingEntry pairs a finding with its fix outcome inside a cycle.
type HealingEntry struct {
	Vulnerability  Finding     `json:"vulnerability"`
	Patch          PatchResult `json:"patch"`
	Healed         bool        `json:"healed"`
	AuditorThought string      `json:"auditor_thought,omitempty"`
	FixerThought   string      `json:"fixer_thought,omitempty"`
}

// CycleSummary is the return value of one full healing cycle.
type CycleSummary struct {
	RunID                 string         `json:"run_id"`
	RepositoryPath        string         `json:"repository_path"`
	ScannedFiles          int            `json:"scanned_files"`
	VulnerabilitiesFound  int            `json:"vulnerabilities_found"`
	VulnerabilitiesHealed int            `json:"vulnerabilities_healed"`
	Entries               []HealingEntry `json:"entries"`
}
