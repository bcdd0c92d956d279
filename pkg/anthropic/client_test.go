package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMessage(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-7-sonnet-20250219",
			"content": [{"type": "text", "text": "output:document.querySelector('.cart__subtotal')"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 18}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", option.WithBaseURL(srv.URL))
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-3-7-sonnet-20250219",
		MaxTokens: 1024,
		System:    "你是一位專業的 HTML 分析專家",
		Messages:  []Message{{Role: "user", Content: "分析這段 HTML"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "msg_01", resp.ID)
	assert.Equal(t, "output:document.querySelector('.cart__subtotal')", resp.Text)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.EqualValues(t, 120, resp.Usage.InputTokens)
	assert.EqualValues(t, 18, resp.Usage.OutputTokens)

	assert.Equal(t, "claude-3-7-sonnet-20250219", gotBody["model"])
	system, ok := gotBody["system"].([]any)
	require.True(t, ok)
	require.Len(t, system, 1)
}

func TestCreateMessage_ConcatenatesTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_02",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-7-sonnet-20250219",
			"content": [
				{"type": "text", "text": "first "},
				{"type": "text", "text": "second"}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 1, "output_tokens": 2}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", option.WithBaseURL(srv.URL))
	resp, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-3-7-sonnet-20250219",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "first second", resp.Text)
}

func TestCreateMessage_APIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := client.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-3-7-sonnet-20250219",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.Error(t, err)

	var apierr *sdk.Error
	require.ErrorAs(t, err, &apierr)
	assert.Equal(t, http.StatusTooManyRequests, apierr.StatusCode)
}
