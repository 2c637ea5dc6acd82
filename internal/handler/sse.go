package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// eventWriter emits chat deltas in the OpenAI streaming shape.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &eventWriter{w: w, flusher: f}, true
}

func (e *eventWriter) delta(content string) error {
	var c streamChoice
	c.Delta.Content = content
	payload, err := json.Marshal(streamChunk{Choices: []streamChoice{c}})
	if err != nil {
		return err
	}
	return e.data(string(payload))
}

func (e *eventWriter) fail(msg string) {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	_ = e.data(string(payload))
}

func (e *eventWriter) done() {
	_ = e.data("[DONE]")
}

func (e *eventWriter) data(s string) error {
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", s); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}
