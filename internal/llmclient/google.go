package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/agentforge/runtime/internal/aggregate"
)

// GoogleProvider wraps Vertex AI's generateContent REST endpoint
// directly over net/http, authenticated by a refreshing
// golang.org/x/oauth2 token source rather than the genai SDK (out of
// scope per SPEC_FULL.md's dropped-dependency list) — a minimal,
// token-refresh-only client, the way the teacher's credential-refresh
// helpers wrap golang.org/x/oauth2 for a single HTTP call path instead
// of pulling in a full provider SDK.
type GoogleProvider struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

// NewGoogleProvider builds a provider that signs every request with
// tokens from ts (e.g. google.FindDefaultCredentials(ctx,
// "https://www.googleapis.com/auth/cloud-platform").TokenSource),
// against a fully-qualified Vertex AI generateContent endpoint.
func NewGoogleProvider(ts oauth2.TokenSource, endpoint, model string) *GoogleProvider {
	return &GoogleProvider{
		httpClient: oauth2.NewClient(context.Background(), ts),
		endpoint:   endpoint,
		model:      model,
	}
}

// NewGoogleProviderFromADC builds a provider using Application Default
// Credentials, the common case for Vertex AI callers that don't manage
// their own service account key.
func NewGoogleProviderFromADC(ctx context.Context, endpoint, model string) (*GoogleProvider, error) {
	creds, err := google.FindDefaultCredentials(ctx, "https://www.googleapis.com/auth/cloud-platform")
	if err != nil {
		return nil, fmt.Errorf("google: find default credentials: %w", err)
	}
	return NewGoogleProvider(creds.TokenSource, endpoint, model), nil
}

func (p *GoogleProvider) Name() string { return "google" }

type googlePart struct {
	Text         string              `json:"text,omitempty"`
	FunctionCall *googleFunctionCall `json:"functionCall,omitempty"`
}

type googleFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googleFunctionDeclaration struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type googleTool struct {
	FunctionDeclarations []googleFunctionDeclaration `json:"functionDeclarations"`
}

type googleGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type googleRequest struct {
	SystemInstruction *googleContent         `json:"systemInstruction,omitempty"`
	Contents          []googleContent        `json:"contents"`
	Tools             []googleTool           `json:"tools,omitempty"`
	GenerationConfig  googleGenerationConfig `json:"generationConfig,omitempty"`
}

type googleCandidate struct {
	Content      googleContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type googleUsageMetadata struct {
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type googleResponse struct {
	Candidates    []googleCandidate   `json:"candidates"`
	UsageMetadata googleUsageMetadata `json:"usageMetadata"`
}

// Complete posts req to the Vertex AI generateContent endpoint and
// normalises the first candidate into an aggregate.CompletionResponse.
func (p *GoogleProvider) Complete(ctx context.Context, req CompletionRequest) (aggregate.CompletionResponse, error) {
	body := googleRequest{
		GenerationConfig: googleGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &googleContent{Role: "user", Parts: []googlePart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == aggregate.TurnAssistant {
			role = "model"
		}
		if m.Content == "" {
			continue
		}
		body.Contents = append(body.Contents, googleContent{Role: role, Parts: []googlePart{{Text: m.Content}}})
	}
	if len(req.Tools) > 0 {
		decls := make([]googleFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, googleFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Schema})
		}
		body.Tools = []googleTool{{FunctionDeclarations: decls}}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return aggregate.CompletionResponse{}, fmt.Errorf("google: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return aggregate.CompletionResponse{}, fmt.Errorf("google: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return aggregate.CompletionResponse{}, fmt.Errorf("google: complete: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return aggregate.CompletionResponse{}, fmt.Errorf("google: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return aggregate.CompletionResponse{}, fmt.Errorf("google: complete: status %d: %s", resp.StatusCode, string(data))
	}

	var out googleResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return aggregate.CompletionResponse{}, fmt.Errorf("google: decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return aggregate.CompletionResponse{}, fmt.Errorf("google: empty candidates")
	}

	var text string
	var calls []aggregate.ToolCall
	for i, part := range out.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
		if part.FunctionCall != nil {
			calls = append(calls, aggregate.ToolCall{
				ID:        fmt.Sprintf("%s-%d", part.FunctionCall.Name, i),
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
		}
	}

	// Gemini reports finishReason "STOP" even when the turn produced a
	// function call, so tool-use is derived from the presence of calls
	// rather than matched out of the finish reason string.
	finish := normalizeFinishReason(out.Candidates[0].FinishReason, []string{"STOP"}, []string{"MAX_TOKENS"}, nil)
	if len(calls) > 0 {
		finish = aggregate.FinishToolUse
	}

	return aggregate.CompletionResponse{
		Text:         text,
		ToolCalls:    calls,
		FinishReason: finish,
		OutputTokens: out.UsageMetadata.CandidatesTokenCount,
	}, nil
}
