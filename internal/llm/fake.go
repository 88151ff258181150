package llm

import (
	"context"
	"sync"
)

// FakeCall is one scripted exchange for the FakeClient.
type FakeCall struct {
	// Result is returned when Err is nil.
	Result *Result
	// Err is returned as-is; wrap in *QuotaError to simulate a 429.
	Err error
	// ReasoningChunks are forwarded to the sink (streaming mode only)
	// before the result is returned.
	ReasoningChunks []string
}

// FakeClient replays scripted responses in order. Deterministic and
// offline; the last scripted call repeats once the script runs out.
type FakeClient struct {
	mu    sync.Mutex
	calls []FakeCall
	next  int

	// Models records the model identifier of every Generate call.
	Models []string
	// Prompts records the prompt of every Generate call.
	Prompts []string
}

func NewFakeClient(calls ...FakeCall) *FakeClient {
	return &FakeClient{calls: calls}
}

func (f *FakeClient) Name() string { return "fake" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Generate(ctx context.Context, model string, req Request, onReasoning ReasoningSink) (*Result, error) {
	f.mu.Lock()
	f.Models = append(f.Models, model)
	f.Prompts = append(f.Prompts, req.Prompt)
	if len(f.calls) == 0 {
		f.mu.Unlock()
		return nil, ErrEmptyResponse
	}
	idx := f.next
	if idx >= len(f.calls) {
		idx = len(f.calls) - 1
	}
	f.next++
	call := f.calls[idx]
	f.mu.Unlock()

	if call.Err != nil {
		return nil, call.Err
	}
	if onReasoning != nil {
		for _, c := range call.ReasoningChunks {
			onReasoning(c)
		}
	}
	res := *call.Result
	if res.Model == "" {
		res.Model = model
	}
	return &res, nil
}

// CallCount returns how many Generate calls were made.
func (f *FakeClient) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Models)
}
