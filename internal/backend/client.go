// Package backend talks to the retrieval backend that actually answers
// questions: it owns the knowledge base, assigns session ids and keeps the
// durable conversation history. This client is the app's only way in.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nelsonwm45/senti-mochi-go/internal/chat"
	"github.com/nelsonwm45/senti-mochi-go/internal/config"
	"github.com/nelsonwm45/senti-mochi-go/internal/logger"
)

const defaultTimeout = 30 * time.Second

// Client is an HTTP client for the retrieval backend. It implements
// chat.ResponseSource.
type Client struct {
	baseURL string
	apiKey  string

	// client bounds plain JSON calls; streamClient has no timeout because a
	// streamed answer legitimately outlives one.
	client       *http.Client
	streamClient *http.Client
}

// New creates a backend client from configuration.
func New(cfg config.BackendConfig) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		client:       &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId,omitempty"`
	Stream    bool   `json:"stream"`
}

// Ask requests one complete answer for the query.
func (c *Client) Ask(ctx context.Context, query, sessionID string) (*chat.Answer, error) {
	resp, err := c.postJSON(ctx, c.client, "/api/chat/query", queryRequest{Query: query, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.asError(resp)
	}
	var answer chat.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	return &answer, nil
}

// Stream requests a streamed answer. The backend replies with one JSON
// object per line: delta lines carrying answer fragments, then a terminal
// done line naming the session. The returned channel closes after the final
// event; callers must drain it.
func (c *Client) Stream(ctx context.Context, query, sessionID string) (<-chan chat.StreamEvent, error) {
	resp, err := c.postJSON(ctx, c.streamClient, "/api/chat/query", queryRequest{Query: query, SessionID: sessionID, Stream: true})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.asError(resp)
	}

	events := make(chan chat.StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk struct {
				Delta     string `json:"delta"`
				Done      bool   `json:"done"`
				SessionID string `json:"sessionId"`
				MessageID string `json:"messageId"`
				Error     string `json:"error"`
			}
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				events <- chat.StreamEvent{Type: chat.StreamError, Err: fmt.Errorf("malformed stream line: %w", err)}
				return
			}
			switch {
			case chunk.Error != "":
				events <- chat.StreamEvent{Type: chat.StreamError, Err: errors.New(chunk.Error)}
				return
			case chunk.Done:
				events <- chat.StreamEvent{Type: chat.StreamDone, SessionID: chunk.SessionID, MessageID: chunk.MessageID}
				return
			case chunk.Delta != "":
				events <- chat.StreamEvent{Type: chat.StreamDelta, Delta: chunk.Delta}
			}
		}
		if err := scanner.Err(); err != nil {
			events <- chat.StreamEvent{Type: chat.StreamError, Err: err}
			return
		}
		events <- chat.StreamEvent{Type: chat.StreamError, Err: errors.New("stream ended before done event")}
	}()
	return events, nil
}

// FetchHistory returns the newest flat history rows, most recent limit rows.
func (c *Client) FetchHistory(ctx context.Context, limit int) ([]chat.HistoryItem, error) {
	url := c.baseURL + "/api/chat/history"
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.asError(resp)
	}
	var items []chat.HistoryItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return items, nil
}

// SubmitFeedback forwards a thumbs rating for an answer.
func (c *Client) SubmitFeedback(ctx context.Context, messageID string, rating int) error {
	resp, err := c.postJSON(ctx, c.client, "/api/feedback", map[string]any{
		"messageId": messageID,
		"rating":    rating,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.asError(resp)
	}
	return nil
}

// DeleteSession removes a session and its messages from the backend.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	url := c.baseURL + "/api/chat/sessions/" + sessionID
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("session %q: %w", sessionID, chat.ErrSessionNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.asError(resp)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, client *http.Client, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	return client.Do(req)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
}

// asError turns a non-200 response into an error. A body whose error or
// detail field signals that the knowledge base had nothing relevant maps to
// chat.ErrNoRelevantData so the conversation can phrase it gently.
func (c *Client) asError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	_ = json.Unmarshal(body, &payload)
	msg := payload.Error
	if msg == "" {
		msg = payload.Detail
	}
	if isNoRelevantData(msg) {
		return fmt.Errorf("backend: %w", chat.ErrNoRelevantData)
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	logger.L.Debugw("backend request rejected", "status", resp.StatusCode, "message", msg)
	return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, msg)
}

func isNoRelevantData(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "no_relevant_information") || strings.Contains(m, "no relevant information")
}
