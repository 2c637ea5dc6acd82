package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/patientsim/internal/model"
)

var testTurns = []model.Turn{
	{Role: model.RoleSystem, Content: "You are Ms. Esposito."},
	{Role: model.RoleAssistant, Content: "Hi, I'm not feeling well."},
	{Role: model.RoleUser, Content: "What brings you in today?"},
}

// fakeAPI serves the subset of the OpenAI API the client uses.
type fakeAPI struct {
	t        *testing.T
	reply    string
	chunks   []string
	hang     bool
	noChoice bool

	mu      sync.Mutex
	lastReq openai.ChatCompletionRequest
}

func (f *fakeAPI) request() openai.ChatCompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/v1/models":
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"test-model","object":"model"}]}`)
	case "/v1/chat/completions":
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("decode request: %v", err)
		}
		f.mu.Lock()
		f.lastReq = req
		f.mu.Unlock()
		if req.Stream {
			f.stream(w, r)
			return
		}
		resp := openai.ChatCompletionResponse{ID: "c1", Object: "chat.completion"}
		if !f.noChoice {
			resp.Choices = []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply},
				FinishReason: openai.FinishReasonStop,
			}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAPI) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	for _, c := range f.chunks {
		payload, _ := json.Marshal(map[string]any{
			"id":      "c1",
			"object":  "chat.completion.chunk",
			"choices": []map[string]any{{"index": 0, "delta": map[string]string{"content": c}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	if f.hang {
		<-r.Context().Done()
		return
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func newTestClient(t *testing.T, api *fakeAPI) *OpenAIClient {
	t.Helper()
	api.t = t
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewOpenAI(srv.URL+"/v1", "test-key", "test-model", Options{})
}

func TestPing(t *testing.T) {
	c := newTestClient(t, &fakeAPI{})
	require.NoError(t, c.Ping(context.Background()))
}

func TestComplete(t *testing.T) {
	api := &fakeAPI{reply: "My side hurts and it burns when I pee."}
	c := newTestClient(t, api)

	got, err := c.Complete(context.Background(), testTurns)
	require.NoError(t, err)
	assert.Equal(t, api.reply, got)

	req := api.request()
	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, DefaultOptions.MaxTokens, req.MaxTokens)
	assert.False(t, req.Stream)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, req.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, req.Messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, req.Messages[2].Role)
}

func TestCompleteNoChoices(t *testing.T) {
	c := newTestClient(t, &fakeAPI{noChoice: true})
	_, err := c.Complete(context.Background(), testTurns)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestStream(t *testing.T) {
	api := &fakeAPI{chunks: []string{"It ", "", "burns."}}
	c := newTestClient(t, api)

	var seen []string
	got, err := c.Stream(context.Background(), testTurns, func(s string) error {
		seen = append(seen, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "It burns.", got)
	assert.Equal(t, []string{"It ", "burns."}, seen)
	assert.True(t, api.request().Stream)
}

func TestStreamCancelled(t *testing.T) {
	api := &fakeAPI{chunks: []string{"Well, "}, hang: true}
	c := newTestClient(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got, err := c.Stream(ctx, testTurns, func(string) error {
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "Well, ", got)
}

func TestStreamCallbackError(t *testing.T) {
	api := &fakeAPI{chunks: []string{"a", "b", "c"}}
	c := newTestClient(t, api)

	stop := errors.New("client went away")
	got, err := c.Stream(context.Background(), testTurns, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "a", got)
}

func TestToChatMessages(t *testing.T) {
	msgs := toChatMessages([]model.Turn{
		{Role: model.RoleSystem, Content: "s"},
		{Role: model.RoleUser, Content: "u"},
		{Role: model.RoleAssistant, Content: "a"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, msgs[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, msgs[2].Role)
	assert.Equal(t, "u", msgs[1].Content)
}
