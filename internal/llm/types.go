package llm

import (
	"context"
	"net/http"
	"time"
)

// Priority levels: the foreground turn loop always preempts the dual
// pre-cache's speculative background calls.
type Priority int

const (
	PriorityForeground Priority = 0 // the learner is waiting on this call
	PriorityPrecache   Priority = 1 // dual pre-cache, fire-and-forget
)

// Request encapsulates an LLM call submitted to the Manager.
type Request struct {
	ID       string
	Priority Priority
	Context  context.Context

	// For standard requests
	URL         string
	Payload     map[string]interface{}
	IsStreaming bool

	// Response handling
	ResponseCh chan<- *Response
	ErrorCh    chan<- error

	SubmitTime time.Time
	Timeout    time.Duration
}

// Response encapsulates LLM output.
type Response struct {
	StatusCode int
	Body       []byte
	HTTPResp   *http.Response     // For streaming
	CancelFunc context.CancelFunc // For streaming: allows caller to clean up context
}

// Metrics tracks queue performance for both priority lanes.
type Metrics struct {
	ForegroundEnqueued  int64
	ForegroundProcessed int64
	ForegroundDropped   int64
	PrecacheEnqueued    int64
	PrecacheProcessed   int64
	PrecacheDropped     int64
	CurrentQueueDepth   map[Priority]int
}
