package llm

import "context"

// ReasoningSink receives reasoning text chunks in arrival order while a
// streaming call is in flight. Implementations must not block for long;
// the producing goroutine is paused while the sink runs.
type ReasoningSink func(text string)

// Request describes one inference call. The prompt and system instruction
// are opaque to this package; callers own their content.
type Request struct {
	Prompt string
	System string
	// JSONResponse asks the service for application/json output.
	JSONResponse bool
	// IncludeThoughts requests reasoning parts (and their signature
	// blobs) alongside the answer.
	IncludeThoughts bool
}

// Thought is one reasoning part with the opaque signature bytes the
// service attached to authenticate it. Signature may be empty.
type Thought struct {
	Text      string
	Signature []byte
}

// Result is the fully collected output of one inference call.
type Result struct {
	// Text is the concatenated answer content, in arrival order.
	Text string
	// Reasoning is the concatenated thought content, in arrival order.
	Reasoning string
	// Thoughts carries the individual reasoning parts with signatures.
	Thoughts []Thought
	// Model is the identifier that actually served the call.
	Model string
}

// Client is the inference service boundary. A nil sink performs a single
// blocking request/response call; a non-nil sink switches to the
// streaming API and forwards reasoning chunks as they arrive. Both paths
// return the same Result shape.
type Client interface {
	Name() string
	Generate(ctx context.Context, model string, req Request, onReasoning ReasoningSink) (*Result, error)
	Close() error
}
