// Package openai implements llm.Provider on the OpenAI chat completions API.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/memoryglass/memoryglass-go/pkg/llm"
)

// Client is an OpenAI-backed reasoning model client. Media payloads are sent
// inline as base64 data URLs on a vision-capable chat model.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for the OpenAI client.
// APIKey is required. Model defaults to gpt-4-vision-preview.
// BaseURL overrides the official endpoint for compatible gateways.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewClient creates a new OpenAI reasoning model client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4VisionPreview
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Generate produces text for the prompt, optionally grounded on inline media.
// API errors are mapped onto the classified llm errors so the gateway can
// decide what to retry.
func (c *Client) Generate(ctx context.Context, prompt string, media *llm.Media, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	var message openai.ChatCompletionMessage
	if media != nil {
		message = openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: prompt,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL: dataURL(media),
					},
				},
			},
		}
	} else {
		message = openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessage{message},
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", llm.ErrUnavailable)
	}

	return resp.Choices[0].Message.Content, nil
}

// Close closes the client. The OpenAI SDK needs no explicit teardown; the
// method exists for interface compatibility.
func (c *Client) Close() error {
	return nil
}

// dataURL renders the media payload as an inline base64 data URL.
func dataURL(media *llm.Media) string {
	return fmt.Sprintf("data:%s;base64,%s", media.MimeType, base64.StdEncoding.EncodeToString(media.Data))
}

// classify maps OpenAI API errors onto the llm error taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", llm.ErrThrottled, err)
		case apiErr.HTTPStatusCode >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %v", llm.ErrUnavailable, err)
		case apiErr.HTTPStatusCode >= http.StatusBadRequest:
			return fmt.Errorf("%w: %v", llm.ErrBadInput, err)
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: %v", llm.ErrThrottled, err)
	}
	return err
}
