package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gpt-tgbot-go/internal/config"
	"github.com/gpt-tgbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrorPrefix tags chunks and assistant results that carry a backend
// failure instead of generated text
const ErrorPrefix = "⚠️ "

// StreamRequest describes one streaming completion call
type StreamRequest struct {
	History     []models.Message
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string
}

// Client is the generation backend abstraction: a chunked completion
// stream and a synchronous external-assistant call
type Client interface {
	// Stream starts a chat completion and returns a channel of text
	// chunks. The channel is always closed; a backend failure is
	// delivered as one final error-marker chunk, never as a hang or a
	// panic in the caller.
	Stream(ctx context.Context, req StreamRequest) <-chan string

	// CallAssistant posts the message to an external assistant endpoint
	// and returns its answer, or an error-tagged string on any failure.
	CallAssistant(ctx context.Context, url, message string) string
}

// OpenAIClient implements Client against OpenAI-compatible endpoints
type OpenAIClient struct {
	apiKey          string
	streamClient    *http.Client
	assistantClient *http.Client
	logger          *logrus.Logger
}

// NewOpenAIClient creates a generation client. The API key is shared; the
// base URL is per-request because users may override it.
func NewOpenAIClient(cfg *config.Config, logger *logrus.Logger) *OpenAIClient {
	return &OpenAIClient{
		apiKey:          cfg.OpenAI.APIKey,
		streamClient:    &http.Client{Timeout: cfg.OpenAI.RequestTimeout},
		assistantClient: &http.Client{Timeout: cfg.Assistant.RequestTimeout},
		logger:          logger,
	}
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream implements the chunked completion call over SSE
func (c *OpenAIClient) Stream(ctx context.Context, req StreamRequest) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		resp, err := c.startStream(ctx, req)
		if err != nil {
			c.logger.WithError(err).WithField("model", req.Model).Error("Failed to start completion stream")
			c.emit(ctx, out, fmt.Sprintf("%sGeneration failed: %v", ErrorPrefix, err))
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}

			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				if payload == "[DONE]" {
					return
				}
				continue
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				c.logger.WithError(err).Debug("Skipping malformed stream event")
				continue
			}

			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				if !c.emit(ctx, out, content) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			c.logger.WithError(err).Error("Completion stream broke mid-answer")
			c.emit(ctx, out, fmt.Sprintf("%sGeneration interrupted: %v", ErrorPrefix, err))
		}
	}()

	return out
}

func (c *OpenAIClient) startStream(ctx context.Context, req StreamRequest) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.History,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimSuffix(req.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.WithFields(logrus.Fields{
		"model":    req.Model,
		"url":      url,
		"messages": len(req.History),
	}).Debug("Starting completion stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("completion request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}

// emit sends a chunk unless the caller has gone away
func (c *OpenAIClient) emit(ctx context.Context, out chan<- string, chunk string) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

type assistantRequest struct {
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context"`
}

type assistantResponse struct {
	Response string `json:"response"`
}

// CallAssistant invokes the user-configured assistant endpoint. All
// failures come back as error-tagged text: the relay treats the result
// like any other answer.
func (c *OpenAIClient) CallAssistant(ctx context.Context, url, message string) string {
	body, err := json.Marshal(assistantRequest{
		Message: message,
		Context: map[string]interface{}{},
	})
	if err != nil {
		return fmt.Sprintf("%sAssistant request failed: %v", ErrorPrefix, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Sprintf("%sAssistant request failed: %v", ErrorPrefix, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.assistantClient.Do(httpReq)
	if err != nil {
		c.logger.WithError(err).WithField("url", url).Warn("Assistant call failed")
		return fmt.Sprintf("%sAssistant connection error: %v", ErrorPrefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("%sAssistant API error: %d", ErrorPrefix, resp.StatusCode)
	}

	var parsed assistantResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Sprintf("%sAssistant returned malformed response: %v", ErrorPrefix, err)
	}

	if parsed.Response == "" {
		return ErrorPrefix + "No response from assistant"
	}

	return parsed.Response
}
