package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/agentforge/runtime/internal/aggregate"
)

type staticTokenSource struct{ token string }

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}, nil
}

func TestGoogleProvider_Complete_ParsesTextResponse(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(googleResponse{
			Candidates: []googleCandidate{{
				Content:      googleContent{Role: "model", Parts: []googlePart{{Text: "hello from gemini"}}},
				FinishReason: "STOP",
			}},
			UsageMetadata: googleUsageMetadata{CandidatesTokenCount: 7},
		})
	}))
	defer server.Close()

	provider := NewGoogleProvider(staticTokenSource{token: "tok-123"}, server.URL, "gemini-1.5-pro")
	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: aggregate.TurnUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from gemini", resp.Text)
	assert.Equal(t, aggregate.FinishStop, resp.FinishReason)
	assert.Equal(t, 7, resp.OutputTokens)
	assert.Contains(t, gotAuth, "tok-123")
}

func TestGoogleProvider_Complete_DerivesToolUseFromFunctionCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(googleResponse{
			Candidates: []googleCandidate{{
				Content: googleContent{Role: "model", Parts: []googlePart{
					{FunctionCall: &googleFunctionCall{Name: "bash", Args: json.RawMessage(`{"command":"ls"}`)}},
				}},
				FinishReason: "STOP",
			}},
		})
	}))
	defer server.Close()

	provider := NewGoogleProvider(staticTokenSource{token: "tok"}, server.URL, "gemini-1.5-pro")
	resp, err := provider.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, aggregate.FinishToolUse, resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "bash", resp.ToolCalls[0].Name)
}

func TestGoogleProvider_Complete_ErrorsOnNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	provider := NewGoogleProvider(staticTokenSource{token: "tok"}, server.URL, "gemini-1.5-pro")
	_, err := provider.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
}
