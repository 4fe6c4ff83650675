package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"tutorcore/internal/tools"
)

// Manager coordinates all LLM requests, preempting the pre-cache lane for
// every foreground (learner-waiting) call, per spec §5.
type Manager struct {
	foregroundQueue chan *Request
	precacheQueue   chan *Request

	maxConcurrent int
	semaphore     chan struct{} // Limit concurrent requests

	circuitBreaker *tools.CircuitBreaker

	mu      sync.RWMutex
	metrics Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup

	config *Config
}

// NewManager creates a new queue manager.
func NewManager(config *Config, circuitBreaker *tools.CircuitBreaker) *Manager {
	m := &Manager{
		foregroundQueue: make(chan *Request, config.ForegroundQueueSize),
		precacheQueue:   make(chan *Request, config.PrecacheQueueSize),
		maxConcurrent:   config.MaxConcurrent,
		semaphore:       make(chan struct{}, config.MaxConcurrent),
		circuitBreaker:  circuitBreaker,
		metrics: Metrics{
			CurrentQueueDepth: map[Priority]int{
				PriorityForeground: 0,
				PriorityPrecache:   0,
			},
		},
		stopCh: make(chan struct{}),
		config: config,
	}

	m.wg.Add(1)
	go m.dispatcher()

	log.Printf("[LLM Queue] Started with %d concurrent slots", config.MaxConcurrent)
	return m
}

// Submit adds a request to the queue (non-blocking with drop behavior).
func (m *Manager) Submit(req *Request) error {
	var queue chan *Request
	var priorityName string

	if req.Priority == PriorityForeground {
		queue = m.foregroundQueue
		priorityName = "foreground"
		m.mu.Lock()
		m.metrics.ForegroundEnqueued++
		m.mu.Unlock()
	} else {
		queue = m.precacheQueue
		priorityName = "precache"
		m.mu.Lock()
		m.metrics.PrecacheEnqueued++
		m.mu.Unlock()
	}

	select {
	case queue <- req:
		m.mu.Lock()
		m.metrics.CurrentQueueDepth[req.Priority] = len(queue)
		m.mu.Unlock()
		return nil

	default:
		m.mu.Lock()
		if req.Priority == PriorityForeground {
			m.metrics.ForegroundDropped++
		} else {
			m.metrics.PrecacheDropped++
		}
		m.mu.Unlock()

		log.Printf("[LLM Queue] WARNING: %s queue full, dropping request %s",
			priorityName, req.ID)
		return fmt.Errorf("queue full")
	}
}

// dispatcher selects the next request, foreground first, then precache.
func (m *Manager) dispatcher() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return

		case req := <-m.foregroundQueue:
			m.semaphore <- struct{}{}
			m.wg.Add(1)
			go m.processRequest(req)

		case req := <-m.precacheQueue:
			// Background request - only if foreground queue is empty.
			select {
			case fgReq := <-m.foregroundQueue:
				m.precacheQueue <- req // Put precache request back
				m.semaphore <- struct{}{}
				m.wg.Add(1)
				go m.processRequest(fgReq)
			default:
				m.semaphore <- struct{}{}
				m.wg.Add(1)
				go m.processRequest(req)
			}
		}
	}
}

// processRequest executes the actual LLM call.
func (m *Manager) processRequest(req *Request) {
	defer func() {
		<-m.semaphore
		m.wg.Done()

		m.mu.Lock()
		if req.Priority == PriorityForeground {
			m.metrics.ForegroundProcessed++
		} else {
			m.metrics.PrecacheProcessed++
		}
		m.mu.Unlock()
	}()

	startTime := time.Now()

	if req.Context.Err() != nil {
		req.ErrorCh <- req.Context.Err()
		return
	}

	ctx, cancel := context.WithTimeout(req.Context, req.Timeout)
	defer cancel()

	resp, err := m.executeHTTPRequest(ctx, req)
	if err != nil {
		log.Printf("[LLM Queue] Request %s failed after %s: %v",
			req.ID, time.Since(startTime), err)
		req.ErrorCh <- err
		return
	}

	select {
	case req.ResponseCh <- resp:
		log.Printf("[LLM Queue] Request %s completed in %s",
			req.ID, time.Since(startTime))
	case <-ctx.Done():
		log.Printf("[LLM Queue] Request %s timeout after %s",
			req.ID, time.Since(startTime))
		req.ErrorCh <- ctx.Err()
	}
}

// executeHTTPRequest performs the actual HTTP call.
func (m *Manager) executeHTTPRequest(ctx context.Context, req *Request) (*Response, error) {
	if m.circuitBreaker != nil && m.circuitBreaker.IsOpen() {
		return nil, fmt.Errorf("circuit breaker open")
	}

	jsonData, err := json.Marshal(req.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", req.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{
		Timeout: req.Timeout,
		Transport: &http.Transport{
			ResponseHeaderTimeout: req.Timeout,
			IdleConnTimeout:       req.Timeout,
			MaxIdleConns:          10,
			DisableKeepAlives:     false,
		},
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		if m.circuitBreaker != nil {
			m.circuitBreaker.Call(func() error { return err })
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	if m.circuitBreaker != nil {
		m.circuitBreaker.Call(func() error { return nil })
	}

	if req.IsStreaming {
		return &Response{
			StatusCode: httpResp.StatusCode,
			HTTPResp:   httpResp,
		}, nil
	}

	defer httpResp.Body.Close()
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Body:       body,
	}, nil
}

// GetMetrics returns current queue statistics.
func (m *Manager) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	metrics := m.metrics
	metrics.CurrentQueueDepth[PriorityForeground] = len(m.foregroundQueue)
	metrics.CurrentQueueDepth[PriorityPrecache] = len(m.precacheQueue)
	return metrics
}

// Stop gracefully shuts down the queue.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	log.Printf("[LLM Queue] Stopped")
}
