package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/types"
)

func sampleTranscript(unit, text string, sig []byte) types.Transcript {
	return types.Transcript{
		Unit:       unit,
		Text:       text,
		Signatures: []types.ThoughtSignature{types.NewThoughtSignature(text, sig)},
	}
}

func TestBuilder_BuildCountsHealed(t *testing.T) {
	b := NewBuilder("abc123def456", "/repo")
	b.now = func() time.Time { return time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC) }
	b.SetScannedFiles(4)

	v := types.Finding{Severity: types.SeverityHigh, Issue: "x", FilePath: "a.py", LineNumber: 1}
	b.Add(v, types.PatchResult{FilePath: "a.py", Success: true}, true, "a.py.bak.20260830T100000Z",
		sampleTranscript("a.py", "audit", []byte{1}), sampleTranscript("a.py", "fix", []byte{2}))
	b.Add(v, types.PatchResult{FilePath: "a.py", Success: false}, false, "",
		sampleTranscript("a.py", "audit", []byte{3}), types.Transcript{})

	m := b.Build()

	assert.Equal(t, Version, m.SentinelVersion)
	assert.Equal(t, "abc123def456", m.RunID)
	assert.Equal(t, "2026-08-30T10:00:00Z", m.Timestamp)
	assert.Equal(t, "/repo", m.Repository)
	assert.Equal(t, 4, m.Summary.ScannedFiles)
	assert.Equal(t, 2, m.Summary.VulnerabilitiesFound)
	assert.Equal(t, 1, m.Summary.VulnerabilitiesHealed)
	require.Len(t, m.Entries, 2)
	assert.Equal(t, "a.py.bak.20260830T100000Z", m.Entries[0].BackupPath)
	assert.Len(t, m.Entries[0].ThoughtSignatures.Fixer, 1)
	assert.Empty(t, m.Entries[1].ThoughtSignatures.Fixer)
}

func TestBuilder_EmptyRunProducesEmptyEntries(t *testing.T) {
	m := NewBuilder("run1", "/repo").Build()
	assert.NotNil(t, m.Entries)
	assert.Empty(t, m.Entries)
	assert.Equal(t, 0, m.Summary.VulnerabilitiesFound)
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder("run1", dir)
	b.SetScannedFiles(1)
	b.Add(
		types.Finding{Severity: types.SeverityLow, Issue: "y", FilePath: "b.go", LineNumber: 3},
		types.PatchResult{FilePath: "b.go", FixedCode: "if x < 1 && y > 2 {}", Success: true},
		true, "",
		sampleTranscript("b.go", "a", []byte{9}), sampleTranscript("b.go", "f", []byte{8}),
	)
	m := b.Build()

	path, err := m.Write(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "if x < 1 && y > 2 {}", "angle brackets must not be HTML-escaped")

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)
	require.Len(t, got.Entries, 1)
	assert.Equal(t, "if x < 1 && y > 2 {}", got.Entries[0].Patch.FixedCode)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
}

func TestParse_RejectsMissingRunID(t *testing.T) {
	_, err := Parse([]byte(`{"sentinel_version":"3.0.0"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_id")
}

func TestVerify_CleanManifest(t *testing.T) {
	b := NewBuilder("run1", "/repo")
	b.Add(
		types.Finding{Issue: "x", FilePath: "a.py"},
		types.PatchResult{Success: true}, true, "",
		sampleTranscript("a.py", "a", []byte{1}), sampleTranscript("a.py", "f", []byte{2}),
	)
	assert.Empty(t, b.Build().Verify())
}

func TestVerify_FlagsHealedEntryWithoutFixerSignature(t *testing.T) {
	b := NewBuilder("run1", "/repo")
	b.Add(
		types.Finding{Issue: "x", FilePath: "a.py"},
		types.PatchResult{Success: true}, true, "",
		sampleTranscript("a.py", "a", []byte{1}), types.Transcript{},
	)
	problems := b.Build().Verify()
	require.Len(t, problems, 1)
	assert.Equal(t, "fixer", problems[0].Stage)
}

func TestVerify_FlagsCorruptSignatureAndBadSummary(t *testing.T) {
	m := &Manifest{
		RunID: "run1",
		Summary: Summary{
			VulnerabilitiesFound:  5,
			VulnerabilitiesHealed: 3,
		},
		Entries: []Entry{{
			Vulnerability: types.Finding{Issue: "x"},
			Healed:        false,
			ThoughtSignatures: Signatures{
				Auditor: []types.ThoughtSignature{{ThoughtText: "t", Signature: "!!not-base64!!"}},
			},
		}},
	}
	problems := m.Verify()
	require.Len(t, problems, 3)
	assert.Equal(t, "auditor", problems[0].Stage)
	assert.Equal(t, "summary", problems[1].Stage)
	assert.Equal(t, "summary", problems[2].Stage)
}

func TestVerify_FlagsEmptySignature(t *testing.T) {
	m := &Manifest{
		RunID: "run1",
		Entries: []Entry{{
			ThoughtSignatures: Signatures{
				Auditor: []types.ThoughtSignature{{ThoughtText: "t", Signature: ""}},
			},
		}},
	}
	problems := m.Verify()
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0].Reason, "empty")
}
