package fix

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/llm"
	"sentinel/internal/types"
)

func newTestFixer(client llm.Client) *Fixer {
	models := llm.NewModelFallback("flash", "pro")
	retrier := llm.NewRetrier(models, nil)
	retrier.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return NewFixer(client, retrier, nil)
}

func testFinding() types.Finding {
	return types.Finding{
		Severity:      types.SeverityHigh,
		Issue:         "SQL injection via string concatenation",
		FilePath:      "app/db.py",
		LineNumber:    12,
		FixSuggestion: "use parameterized queries",
	}
}

func TestGeneratePatch_StripsFences(t *testing.T) {
	client := llm.NewFakeClient(llm.FakeCall{
		Result: &llm.Result{Text: "```python\nquery = db.execute(sql, params)\n```"},
	})
	f := newTestFixer(client)

	res, _ := f.GeneratePatch(context.Background(), testFinding(), "query = db.execute(sql + user)", nil)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "query = db.execute(sql, params)", res.FixedCode)
	assert.Equal(t, "app/db.py", res.FilePath)
	assert.Equal(t, "flash", res.Model)
}

func TestGeneratePatch_PlainAnswerPassedThrough(t *testing.T) {
	client := llm.NewFakeClient(llm.FakeCall{
		Result: &llm.Result{Text: "  safe_code()\n"},
	})
	f := newTestFixer(client)

	res, _ := f.GeneratePatch(context.Background(), testFinding(), "orig", nil)

	require.True(t, res.Success)
	assert.Equal(t, "safe_code()", res.FixedCode)
}

func TestGeneratePatch_EmptyAnswerFails(t *testing.T) {
	client := llm.NewFakeClient(llm.FakeCall{
		Result: &llm.Result{Text: "```\n\n```"},
	})
	f := newTestFixer(client)

	res, _ := f.GeneratePatch(context.Background(), testFinding(), "orig", nil)

	require.False(t, res.Success)
	assert.Equal(t, "Model returned an empty response.", res.Message)
	assert.Empty(t, res.FixedCode)
	assert.Equal(t, "orig", res.OriginalCode)
}

func TestGeneratePatch_StreamingForwardsReasoningBeforeResult(t *testing.T) {
	client := llm.NewFakeClient(llm.FakeCall{
		Result:          &llm.Result{Text: "xy", Reasoning: "ab"},
		ReasoningChunks: []string{"a", "b"},
	})
	f := newTestFixer(client)

	var events []string
	res, _ := f.GeneratePatch(context.Background(), testFinding(), "orig", func(text string) {
		events = append(events, "think:"+text)
	})
	events = append(events, "result:"+res.FixedCode)

	require.True(t, res.Success)
	assert.Equal(t, []string{"think:a", "think:b", "result:xy"}, events)
}

func TestGeneratePatch_ExhaustionEncodedInResult(t *testing.T) {
	quota := &llm.QuotaError{Err: assert.AnError}
	client := llm.NewFakeClient(llm.FakeCall{Err: quota})
	f := newTestFixer(client)

	res, _ := f.GeneratePatch(context.Background(), testFinding(), "orig", nil)

	require.False(t, res.Success)
	assert.Equal(t, "Rate limited after exhausting retries on all models.", res.Message)
	assert.Equal(t, 6, client.CallCount())
}

func TestGeneratePatch_TranscriptCaptured(t *testing.T) {
	client := llm.NewFakeClient(llm.FakeCall{
		Result: &llm.Result{
			Text:      "fixed()",
			Reasoning: "the bug is on line 12",
			Thoughts: []llm.Thought{
				{Text: "the bug is on line 12", Signature: []byte{0xde, 0xad}},
				{Text: "unsigned", Signature: nil},
			},
		},
	})
	f := newTestFixer(client)

	res, tr := f.GeneratePatch(context.Background(), testFinding(), "orig", nil)

	require.True(t, res.Success)
	assert.Equal(t, "app/db.py", tr.Unit)
	assert.Equal(t, "the bug is on line 12", tr.Text)
	require.Len(t, tr.Signatures, 1)
	sig, err := tr.Signatures[0].DecodeSignature()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, sig)
}

// floodClient emits far more reasoning chunks than the drain queue
// buffers, then closes finished when the call returns.
type floodClient struct {
	finished chan struct{}
}

func (c *floodClient) Name() string { return "flood" }

func (c *floodClient) Generate(ctx context.Context, model string, req llm.Request, onReasoning llm.ReasoningSink) (*llm.Result, error) {
	defer close(c.finished)
	for i := 0; i < 256; i++ {
		onReasoning("chunk")
	}
	return &llm.Result{Text: "fixed()"}, nil
}

func (c *floodClient) Close() error { return nil }

func TestGeneratePatch_PanickingSinkDoesNotStrandProducer(t *testing.T) {
	client := &floodClient{finished: make(chan struct{})}
	f := newTestFixer(client)

	panicked := make(chan struct{})
	go func() {
		defer func() {
			if recover() != nil {
				close(panicked)
			}
		}()
		f.GeneratePatch(context.Background(), testFinding(), "orig", func(string) {
			panic("sink failure")
		})
	}()

	select {
	case <-panicked:
	case <-time.After(2 * time.Second):
		t.Fatal("sink panic never surfaced")
	}
	select {
	case <-client.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("producer stayed blocked after sink panic")
	}
}

func TestExtractCode(t *testing.T) {
	cases := []struct {
		name, in, want string
	}{
		{"fenced with language", "```go\nfunc main() {}\n```", "func main() {}"},
		{"fenced bare", "```\nx = 1\n```", "x = 1"},
		{"prose around fence", "Here you go:\n```py\nprint(1)\n```\ndone", "print(1)"},
		{"no fence", "just code", "just code"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractCode(tc.in))
		})
	}
}

func TestBuildPrompt_EmbedsFindingAndCode(t *testing.T) {
	p := buildPrompt(testFinding(), "query = db.execute(sql + user)")
	assert.Contains(t, p, "SQL injection via string concatenation")
	assert.Contains(t, p, "`app/db.py`")
	assert.Contains(t, p, "use parameterized queries")
	assert.Contains(t, p, "```\nquery = db.execute(sql + user)\n```")
}
