package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/clinagents/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ model.Client = (*Model)(nil)

func TestModel_Invoke(t *testing.T) {
	var body struct {
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
		System []map[string]any `json:"system"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","type":"message","role":"assistant","model":"claude-3-5-sonnet-20241022",
			"content":[{"type":"text","text":"Final Diagnosis: appendicitis"}],
			"stop_reason":"end_turn","usage":{"input_tokens":20,"output_tokens":6}}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.BaseURL = srv.URL + "/"
		o.APIKey = "test"
	})

	resp, err := m.Invoke(context.Background(), model.Request{
		System:   "sys",
		Messages: []model.Message{model.User("history"), model.User("observation"), model.Assistant("a")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Final Diagnosis: appendicitis", resp.Text)
	assert.Equal(t, 20, resp.Usage.InputTokens)
	assert.Equal(t, 6, resp.Usage.OutputTokens)

	require.Len(t, body.Messages, 2)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Equal(t, "assistant", body.Messages[1].Role)
	assert.Len(t, body.System, 1)
}

func TestModel_InvokeRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.BaseURL = srv.URL + "/"
		o.APIKey = "test"
	})
	_, err := m.Invoke(context.Background(), model.Request{Messages: []model.Message{model.User("hi")}})
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}

func TestBuildMessages_LeadingAssistant(t *testing.T) {
	msgs := buildMessages([]model.Message{model.Assistant("a"), model.User("b")})
	require.Len(t, msgs, 3)
}
