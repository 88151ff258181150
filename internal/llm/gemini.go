package llm

import (
	"context"
	"strings"

	"github.com/hashicorp/go-hclog"
	genai "google.golang.org/genai"
)

// GeminiClient is a thin wrapper around the official genai client.
// It focuses on the API call itself; retries and model fallback are
// applied by the Retrier, pacing by the caller.
type GeminiClient struct {
	cli *genai.Client
	rl  *rpsLimiter
	log hclog.Logger
}

func NewGeminiClient(ctx context.Context, apiKey string, log hclog.Logger) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &GeminiClient{cli: cli, rl: limiterFromEnv(), log: log.Named("gemini")}, nil
}

func (g *GeminiClient) Name() string { return "gemini" }

func (g *GeminiClient) Close() error {
	g.rl.Stop()
	return nil
}

// Generate issues one call against the given model. With a nil sink it
// uses the blocking API; otherwise it streams and forwards reasoning
// chunks to the sink in arrival order.
func (g *GeminiClient) Generate(ctx context.Context, model string, req Request, onReasoning ReasoningSink) (*Result, error) {
	if err := g.rl.Acquire(ctx); err != nil {
		return nil, err
	}

	contents := []*genai.Content{{Parts: []*genai.Part{{Text: req.Prompt}}}}
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.JSONResponse {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.IncludeThoughts {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}

	g.log.Debug("inference call", "model", model, "prompt_bytes", len(req.Prompt), "streaming", onReasoning != nil)

	if onReasoning != nil {
		return g.generateStream(ctx, model, contents, cfg, onReasoning)
	}

	resp, err := g.cli.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return nil, classifyErr(err)
	}
	res := &Result{Model: model}
	collectParts(res, resp, nil)
	if strings.TrimSpace(res.Text) == "" && len(res.Thoughts) == 0 {
		return nil, ErrEmptyResponse
	}
	return res, nil
}

func (g *GeminiClient) generateStream(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig, onReasoning ReasoningSink) (*Result, error) {
	res := &Result{Model: model}
	for resp, err := range g.cli.Models.GenerateContentStream(ctx, model, contents, cfg) {
		if err != nil {
			return nil, classifyErr(err)
		}
		collectParts(res, resp, onReasoning)
	}
	if strings.TrimSpace(res.Text) == "" && len(res.Thoughts) == 0 {
		return nil, ErrEmptyResponse
	}
	return res, nil
}

// collectParts folds one response (or stream chunk) into res, keeping
// the arrival order of both answer and reasoning content.
func collectParts(res *Result, resp *genai.GenerateContentResponse, onReasoning ReasoningSink) {
	if resp == nil {
		return
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if part.Thought {
				res.Reasoning += part.Text
				res.Thoughts = append(res.Thoughts, Thought{
					Text:      part.Text,
					Signature: part.ThoughtSignature,
				})
				if onReasoning != nil {
					onReasoning(part.Text)
				}
				continue
			}
			res.Text += part.Text
		}
	}
}
