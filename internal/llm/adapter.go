package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Adapter implements the spec §6 content-collaborator contract —
// chat(prompt, temperature, thinking, timeout) plus the defensive JSON
// parser parse_object — over the priority-queued Client. Grounded on
// internal/goal/llm_adapter.go's OpenAI-style chat payload construction.
type Adapter struct {
	client *Client
	url    string
	model  string
}

func NewAdapter(client *Client, url, model string) *Adapter {
	return &Adapter{client: client, url: url, model: model}
}

// Chat sends prompt to the configured LLM endpoint and returns its raw text
// reply, the model name that produced it, and the full prompt sent (the
// last is echoed back verbatim for callers that persist prompt_used).
func (a *Adapter) Chat(ctx context.Context, prompt string, temperature float64, thinking bool) (text, modelName, fullPrompt string, err error) {
	payload := map[string]interface{}{
		"model": a.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a precise JSON generator for an adaptive tutoring system. Output only valid JSON."},
			{"role": "user", "content": prompt},
		},
		"temperature": temperature,
	}
	if thinking {
		payload["thinking"] = true
	}

	respBody, err := a.client.Call(ctx, a.url, payload)
	if err != nil {
		return "", "", prompt, fmt.Errorf("llm call failed: %w", err)
	}

	var llmResp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &llmResp); err != nil {
		return "", "", prompt, fmt.Errorf("failed to unmarshal llm response: %w", err)
	}
	if len(llmResp.Choices) == 0 {
		return "", "", prompt, fmt.Errorf("no choices returned from llm")
	}

	modelName = llmResp.Model
	if modelName == "" {
		modelName = a.model
	}
	return llmResp.Choices[0].Message.Content, modelName, prompt, nil
}

var (
	fencedJSONRe   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	firstObjectRe  = regexp.MustCompile(`(?s)\{.*\}`)
	firstArrayRe   = regexp.MustCompile(`(?s)\[.*\]`)
	invalidEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)
)

// ParseObject defensively extracts a JSON object from LLM free text,
// per spec §4.6 step 4: try raw, then a fenced code block, then the first
// brace span, then the first bracket span, retrying each stage after
// doubling backslashes that do not start a valid JSON escape (LaTeX-style
// `\(`, `\s`). Backslash sequences that are valid JSON escapes (`\t`, `\n`,
// `\b`, `\f`, `\r`, `\u`) are not repaired and decode as control
// characters; a top-level JSON array does not decode into the returned map.
func ParseObject(text string) (map[string]interface{}, error) {
	candidates := []string{text}

	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := firstObjectRe.FindString(text); m != "" {
		candidates = append(candidates, m)
	}
	if m := firstArrayRe.FindString(text); m != "" {
		candidates = append(candidates, m)
	}

	var lastErr error
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(c), &out); err == nil {
			return out, nil
		}
		repaired := repairEscapes(c)
		if err := json.Unmarshal([]byte(repaired), &out); err == nil {
			return out, nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no JSON object found in response")
	}
	return nil, lastErr
}

// repairEscapes double-escapes backslashes that are not valid JSON escape
// sequences — the common case being LaTeX fragments like `\(x+1\)` or
// `\sqrt{2}` that an LLM emits unescaped inside a JSON string value.
func repairEscapes(s string) string {
	return invalidEscapeRe.ReplaceAllString(s, `\\$1`)
}
