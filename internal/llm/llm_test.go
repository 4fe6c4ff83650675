package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tutorcore/internal/tools"
)

func newTestManager(t *testing.T) (*Manager, func()) {
	t.Helper()
	cfg := &Config{
		MaxConcurrent:       2,
		ForegroundQueueSize: 4,
		PrecacheQueueSize:   4,
		ForegroundTimeout:   2 * time.Second,
		PrecacheTimeout:     2 * time.Second,
	}
	cb := tools.NewCircuitBreaker(3, time.Minute)
	m := NewManager(cfg, cb)
	return m, m.Stop
}

func TestClient_Call_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "test-model",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hello"}},
			},
		})
	}))
	defer srv.Close()

	m, stop := newTestManager(t)
	defer stop()

	client := NewClient(m, PriorityForeground, time.Second)
	body, err := client.Call(context.Background(), srv.URL, map[string]interface{}{"prompt": "hi"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(body) == 0 {
		t.Fatalf("expected non-empty body")
	}
}

func TestAdapter_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"model": "test-model",
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": `{"content":"What is 2+2?"}`}},
			},
		})
	}))
	defer srv.Close()

	m, stop := newTestManager(t)
	defer stop()

	client := NewClient(m, PriorityForeground, time.Second)
	adapter := NewAdapter(client, srv.URL, "test-model")

	text, model, fullPrompt, err := adapter.Chat(context.Background(), "generate an item", 0.7, false)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if model != "test-model" {
		t.Errorf("expected model name, got %q", model)
	}
	if fullPrompt != "generate an item" {
		t.Errorf("expected echoed prompt, got %q", fullPrompt)
	}
	obj, err := ParseObject(text)
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	if obj["content"] != "What is 2+2?" {
		t.Errorf("unexpected parsed object: %+v", obj)
	}
}

func TestParseObject_Raw(t *testing.T) {
	obj, err := ParseObject(`{"a": 1, "b": "two"}`)
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	if obj["b"] != "two" {
		t.Errorf("unexpected: %+v", obj)
	}
}

func TestParseObject_FencedBlock(t *testing.T) {
	text := "Here you go:\n```json\n{\"question\": \"2+2?\", \"answer\": \"4\"}\n```\nHope that helps."
	obj, err := ParseObject(text)
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	if obj["answer"] != "4" {
		t.Errorf("unexpected: %+v", obj)
	}
}

func TestParseObject_FirstBraceSpan(t *testing.T) {
	text := `The model said: {"question": "What is 3*3?", "answer": "9"} -- done.`
	obj, err := ParseObject(text)
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	if obj["answer"] != "9" {
		t.Errorf("unexpected: %+v", obj)
	}
}

func TestParseObject_RepairsLatexEscapes(t *testing.T) {
	text := `{"question": "Solve \(x+1=2\)", "answer": "1"}`
	obj, err := ParseObject(text)
	if err != nil {
		t.Fatalf("ParseObject: %v", err)
	}
	if obj["answer"] != "1" {
		t.Errorf("unexpected: %+v", obj)
	}
}

func TestManager_StartsWithEmptyForegroundQueue(t *testing.T) {
	m, stop := newTestManager(t)
	defer stop()

	metrics := m.GetMetrics()
	if metrics.CurrentQueueDepth[PriorityForeground] != 0 {
		t.Errorf("expected empty foreground queue at start")
	}
}
