// Package retrieval provides the knowledge-retrieval capability. The backend
// speaks a conversation-style API: a query opens a conversation, and the
// answer message is polled until the backend marks it completed.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/luma-insights/prism/internal/circuitbreaker"
	"github.com/luma-insights/prism/internal/config"
	"github.com/luma-insights/prism/internal/metrics"
)

// RawSource is one source entry as returned by the backend, untouched.
type RawSource struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Excerpt string `json:"excerpt,omitempty"`
	Page    int    `json:"page,omitempty"`
}

// Answer is the completed backend response for one query.
type Answer struct {
	Text           string      `json:"text"`
	Sources        []RawSource `json:"sources"`
	ConversationID string      `json:"conversation_id"`
	MessageID      string      `json:"message_id"`
}

// Client is the retrieval capability.
type Client interface {
	// Query opens a conversation for the text and waits for the answer.
	Query(ctx context.Context, text string) (*Answer, error)
	// Followup sends a follow-up message on an existing conversation.
	Followup(ctx context.Context, conversationID, text string) (*Answer, error)
	// Feedback reports answer quality back to the backend. Best effort.
	Feedback(ctx context.Context, messageID, verdict string) error
}

// HTTPClient implements Client against the conversation HTTP API.
type HTTPClient struct {
	baseURL      string
	apiKey       string
	pollInterval time.Duration
	pollMax      int
	httpClient   *http.Client
	breaker      *circuitbreaker.Breaker
	logger       *zap.Logger
}

// NewHTTPClient builds the production client from configuration.
func NewHTTPClient(cfg config.RetrievalConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		pollInterval: cfg.PollInterval,
		pollMax:      cfg.PollMax,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		breaker:      circuitbreaker.New("retrieval", circuitbreaker.DefaultConfig(), logger),
		logger:       logger,
	}
}

type conversationResponse struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type messageResponse struct {
	Content string `json:"content"`
	Status  string `json:"status"`
	Sources []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Excerpt string `json:"excerpt"`
		Page    int    `json:"page"`
	} `json:"sources"`
}

// Query opens a conversation and polls the answer message to completion.
func (c *HTTPClient) Query(ctx context.Context, text string) (*Answer, error) {
	var answer *Answer
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		answer, callErr = c.converse(ctx, c.baseURL+"/assistant/conversations", text)
		return callErr
	})
	if err != nil {
		metrics.CapabilityCalls.WithLabelValues("retrieval", "error").Inc()
		return nil, err
	}
	metrics.CapabilityCalls.WithLabelValues("retrieval", "ok").Inc()
	return answer, nil
}

// Followup posts a message onto an existing conversation and polls the reply.
func (c *HTTPClient) Followup(ctx context.Context, conversationID, text string) (*Answer, error) {
	url := fmt.Sprintf("%s/assistant/conversations/%s/messages", c.baseURL, conversationID)
	var answer *Answer
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		answer, callErr = c.converse(ctx, url, text)
		return callErr
	})
	if err != nil {
		metrics.CapabilityCalls.WithLabelValues("retrieval", "error").Inc()
		return nil, err
	}
	metrics.CapabilityCalls.WithLabelValues("retrieval", "ok").Inc()
	return answer, nil
}

// Feedback posts a quality verdict for a message. Failures are logged, not
// returned as pipeline errors; feedback never blocks a report.
func (c *HTTPClient) Feedback(ctx context.Context, messageID, verdict string) error {
	url := fmt.Sprintf("%s/assistant/messages/%s/feedback", c.baseURL, messageID)
	body, _ := json.Marshal(map[string]string{"feedback": verdict})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Feedback call failed", zap.String("message_id", messageID), zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		c.logger.Warn("Feedback rejected", zap.String("message_id", messageID), zap.Int("status", resp.StatusCode))
		return fmt.Errorf("feedback returned %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) converse(ctx context.Context, url, text string) (*Answer, error) {
	conv, err := c.openConversation(ctx, url, text)
	if err != nil {
		return nil, err
	}
	if conv.ConversationID == "" || conv.MessageID == "" {
		return nil, fmt.Errorf("backend returned incomplete conversation handle (cid=%q mid=%q)",
			conv.ConversationID, conv.MessageID)
	}

	msg, err := c.pollMessage(ctx, conv.ConversationID, conv.MessageID)
	if err != nil {
		return nil, err
	}

	answer := &Answer{
		Text:           msg.Content,
		ConversationID: conv.ConversationID,
		MessageID:      conv.MessageID,
	}
	for _, s := range msg.Sources {
		answer.Sources = append(answer.Sources, RawSource{
			Title:   s.Title,
			URL:     s.URL,
			Excerpt: s.Excerpt,
			Page:    s.Page,
		})
	}
	return answer, nil
}

func (c *HTTPClient) openConversation(ctx context.Context, url, text string) (*conversationResponse, error) {
	body, err := json.Marshal(map[string]string{"message": text})
	if err != nil {
		return nil, fmt.Errorf("marshal conversation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create conversation request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("conversation call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read conversation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("conversation endpoint returned %d", resp.StatusCode)
	}

	var conv conversationResponse
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation response: %w", err)
	}
	return &conv, nil
}

// pollMessage fetches the message until the backend reports it completed or
// the poll budget is exhausted.
func (c *HTTPClient) pollMessage(ctx context.Context, conversationID, messageID string) (*messageResponse, error) {
	url := fmt.Sprintf("%s/assistant/conversations/%s/messages/%s", c.baseURL, conversationID, messageID)

	for attempt := 0; attempt < c.pollMax; attempt++ {
		msg, err := c.getMessage(ctx, url)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(msg.Status) {
		case "completed", "complete", "done", "":
			if msg.Content != "" || msg.Status != "" {
				return msg, nil
			}
		case "failed", "error":
			return nil, fmt.Errorf("backend reported message %s as %s", messageID, msg.Status)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil, fmt.Errorf("message %s not completed after %d polls", messageID, c.pollMax)
}

func (c *HTTPClient) getMessage(ctx context.Context, url string) (*messageResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create message request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("message call failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read message response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("message endpoint returned %d", resp.StatusCode)
	}

	var msg messageResponse
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode message response: %w", err)
	}
	return &msg, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}
