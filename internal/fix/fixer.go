// Package fix implements the second stage of a healing cycle: asking
// the inference service to rewrite a vulnerable unit and extracting the
// replacement code from its answer.
package fix

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-hclog"

	"sentinel/internal/llm"
	"sentinel/internal/types"
)

const systemInstruction = "You are a Senior Security Engineer. " +
	"You will be given a vulnerability report and the original source code. " +
	"Rewrite the code to fix the vulnerability while maintaining the original " +
	"functionality. Return ONLY the fixed code block — no markdown fences, " +
	"no explanations, no commentary."

var fenceRe = regexp.MustCompile("(?s)```(?:\\w+)?\\s*\\n(.*?)```")

// Fixer generates one patch per finding. Retry/backoff and model
// fallback are delegated to the shared Retrier, so the blocking and
// streaming paths behave identically under quota pressure.
type Fixer struct {
	Client  llm.Client
	Retrier *llm.Retrier
	Log     hclog.Logger
}

func NewFixer(client llm.Client, retrier *llm.Retrier, log hclog.Logger) *Fixer {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Fixer{Client: client, Retrier: retrier, Log: log.Named("fixer")}
}

// GeneratePatch asks the service for a fixed version of the unit. When
// onThinking is non-nil the call streams: reasoning chunks are
// forwarded to onThinking in strict arrival order while the answer is
// buffered, and the final result only becomes available after the
// stream completes. Failures are encoded in the returned PatchResult;
// the transcript is returned even for failed generations.
func (f *Fixer) GeneratePatch(ctx context.Context, v types.Finding, originalCode string, onThinking func(text string)) (types.PatchResult, types.Transcript) {
	req := llm.Request{
		Prompt:          buildPrompt(v, originalCode),
		System:          systemInstruction,
		IncludeThoughts: true,
	}

	var res *llm.Result
	var err error
	if onThinking != nil {
		res, err = f.generateStreaming(ctx, req, onThinking)
	} else {
		res, err = f.Retrier.Invoke(ctx, func(ctx context.Context, model string) (*llm.Result, error) {
			return f.Client.Generate(ctx, model, req, nil)
		})
	}

	transcript := types.Transcript{Unit: v.FilePath}
	model := ""
	if res != nil {
		model = res.Model
		transcript.Text = res.Reasoning
		for _, th := range res.Thoughts {
			if len(th.Signature) == 0 {
				continue
			}
			transcript.Signatures = append(transcript.Signatures,
				types.NewThoughtSignature(th.Text, th.Signature))
		}
	}

	if err != nil {
		f.Log.Error("patch generation failed", "file", v.FilePath, "error", err)
		msg := fmt.Sprintf("Inference error: %v", err)
		if errors.Is(err, llm.ErrExhausted) {
			msg = "Rate limited after exhausting retries on all models."
		}
		return types.PatchResult{
			FilePath:     v.FilePath,
			OriginalCode: originalCode,
			Success:      false,
			Message:      msg,
			Model:        model,
		}, transcript
	}

	fixed := ExtractCode(res.Text)
	if strings.TrimSpace(fixed) == "" {
		f.Log.Warn("model returned empty fix", "file", v.FilePath)
		return types.PatchResult{
			FilePath:     v.FilePath,
			OriginalCode: originalCode,
			Success:      false,
			Message:      "Model returned an empty response.",
			Model:        model,
		}, transcript
	}

	f.Log.Info("patch generated",
		"file", v.FilePath, "line", v.LineNumber, "severity", string(v.Severity), "model", model)

	return types.PatchResult{
		FilePath:     v.FilePath,
		OriginalCode: originalCode,
		FixedCode:    fixed,
		Success:      true,
		Message:      fmt.Sprintf("Patch generated successfully (model=%s).", model),
		Model:        model,
	}, transcript
}

type streamOutcome struct {
	res *llm.Result
	err error
}

// generateStreaming runs the retried call on its own goroutine while
// this goroutine drains reasoning chunks from a queue. The queue is
// closed after the call completes (the sentinel), at which point the
// final result is collected. The caller therefore blocks on the queue,
// not on the call.
func (f *Fixer) generateStreaming(ctx context.Context, req llm.Request, onThinking func(string)) (*llm.Result, error) {
	chunks := make(chan string, 64)
	done := make(chan streamOutcome, 1)

	go func() {
		res, err := f.Retrier.Invoke(ctx, func(ctx context.Context, model string) (*llm.Result, error) {
			return f.Client.Generate(ctx, model, req, func(text string) {
				chunks <- text
			})
		})
		close(chunks)
		done <- streamOutcome{res: res, err: err}
	}()

	// If onThinking panics mid-drain the producer must not be left
	// blocked on a full queue. Drain whatever remains on the way out.
	defer func() {
		for range chunks {
		}
	}()

	for text := range chunks {
		onThinking(text)
	}
	out := <-done
	return out.res, out.err
}

func buildPrompt(v types.Finding, originalCode string) string {
	return fmt.Sprintf(
		"You are a Senior Security Engineer. "+
			"Analyze this vulnerability: %s. "+
			"Rewrite the code to fix this while maintaining the original "+
			"functionality. Return ONLY the fixed code block.\n\n"+
			"### Vulnerability details\n"+
			"- **File:** `%s`\n"+
			"- **Line:** %d\n"+
			"- **Severity:** %s\n"+
			"- **Suggested fix:** %s\n\n"+
			"### Original code\n"+
			"```\n%s\n```",
		v.Issue, v.FilePath, v.LineNumber, v.Severity, v.FixSuggestion, originalCode,
	)
}

// ExtractCode strips markdown fences when the model wraps its answer in
// them, returning the raw text verbatim otherwise.
func ExtractCode(raw string) string {
	if m := fenceRe.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(raw)
}
