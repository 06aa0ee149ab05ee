package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hupe1980/grantmesh/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ model.Model = (*Model)(nil)

func TestGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "{\"score\": 72}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 11, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.APIKey = "test"
		o.BaseURL = srv.URL
	})
	resp, err := m.Generate(context.Background(), model.UserPrompt("You review grants.", "Score this"))
	require.NoError(t, err)

	assert.Equal(t, `{"score": 72}`, resp.Text)
	assert.Equal(t, "end_turn", resp.FinishReason)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, int64(18), resp.Usage.TotalTokens)

	assert.Equal(t, "claude-3-5-sonnet-20241022", got["model"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
	assert.NotNil(t, got["system"])
}

func TestGenerate_EmptyRequest(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "test" })
	_, err := m.Generate(context.Background(), model.Request{})
	assert.ErrorIs(t, err, model.ErrEmptyRequest)
	assert.Equal(t, "anthropic", m.Info().Provider)
}
