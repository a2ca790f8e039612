package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"

	"github.com/nelsonwm45/senti-mochi-go/internal/chat"
	"github.com/nelsonwm45/senti-mochi-go/internal/config"
	"github.com/nelsonwm45/senti-mochi-go/internal/logger"
)

const defaultSystemPrompt = "You are Senti Mochi, a financial research assistant. Answer questions about markets, filings and news accurately and concisely."

// Source answers chat queries by talking to an LLM directly. It is the
// fallback used when no retrieval backend is configured: every query is
// answered in isolation, without document retrieval, citations or
// server-side history.
type Source struct {
	client       Client
	model        string
	systemPrompt string
}

// NewSource returns a direct-LLM response source.
func NewSource(client Client, cfg config.LLMConfig) *Source {
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	return &Source{
		client:       client,
		model:        cfg.Model,
		systemPrompt: prompt,
	}
}

// Ask requests one complete answer for the query.
func (s *Source) Ask(ctx context.Context, query, sessionID string) (*chat.Answer, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: s.prompt(query),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}
	return &chat.Answer{
		MessageID: resp.ID,
		Text:      resp.Choices[0].Message.Content,
		SessionID: s.session(sessionID),
	}, nil
}

// Stream requests a streamed answer. The returned channel closes after a
// final done or error event.
func (s *Source) Stream(ctx context.Context, query, sessionID string) (<-chan chat.StreamEvent, error) {
	stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: s.prompt(query),
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("open completion stream: %w", err)
	}

	bound := s.session(sessionID)
	events := make(chan chat.StreamEvent)
	go func() {
		defer close(events)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				events <- chat.StreamEvent{Type: chat.StreamDone, SessionID: bound}
				return
			}
			if err != nil {
				events <- chat.StreamEvent{Type: chat.StreamError, Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				events <- chat.StreamEvent{Type: chat.StreamDelta, Delta: delta}
			}
		}
	}()
	return events, nil
}

// FetchHistory returns nothing: the direct source keeps no server-side
// history, so past sessions only exist while a backend is configured.
func (s *Source) FetchHistory(ctx context.Context, limit int) ([]chat.HistoryItem, error) {
	return nil, nil
}

// SubmitFeedback has nowhere to deliver ratings without a backend.
func (s *Source) SubmitFeedback(ctx context.Context, messageID string, rating int) error {
	logger.L.Debugw("feedback dropped, no backend configured", "messageId", messageID, "rating", rating)
	return nil
}

func (s *Source) prompt(query string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if s.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: s.systemPrompt,
		})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: query,
	})
}

// session keeps an existing binding or mints a fresh id, mirroring how the
// retrieval backend assigns session ids on the first answer.
func (s *Source) session(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return uuid.NewString()
}
