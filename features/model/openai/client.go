// Package openai provides a model.Client implementation backed by the OpenAI
// Chat Completions API using github.com/openai/openai-go.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"goa.design/converse/runtime/model"
)

type (
	// ChatService captures the subset of the OpenAI SDK chat completion
	// service used by the adapter. Satisfied by client.Chat.Completions so
	// tests can pass a mock.
	ChatService interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
		NewStreaming(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.ChatCompletionChunk]
	}

	// Options configures the OpenAI adapter.
	Options struct {
		// DefaultModel is the model identifier used when
		// model.Request.Model is empty. Required.
		DefaultModel string
		// Temperature is used when a request does not specify one.
		Temperature float64
	}

	// Client implements model.Client on top of OpenAI chat completions.
	Client struct {
		chat         ChatService
		defaultModel string
		temp         float64
	}

	// streamer adapts an OpenAI completion stream to model.Streamer.
	streamer struct {
		stream *ssestream.Stream[sdk.ChatCompletionChunk]
	}
)

// New builds an OpenAI-backed model client.
func New(chat ChatService, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai chat service is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{DefaultModel: defaultModel})
}

// Complete issues a non-streaming chat completion request.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return model.Response{}, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		if isThrottled(err) {
			return model.Response{}, fmt.Errorf("%w: %w", model.ErrThrottled, err)
		}
		return model.Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.Response{}, errors.New("openai chat completion: empty response")
	}
	choice := resp.Choices[0]
	return model.Response{
		Text:       choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Stream issues a streaming chat completion request and adapts incremental
// content deltas into model.Chunks.
func (c *Client) Stream(ctx context.Context, req model.Request) (model.Streamer, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	stream := c.chat.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		if isThrottled(err) {
			return nil, fmt.Errorf("%w: %w", model.ErrThrottled, err)
		}
		return nil, fmt.Errorf("openai chat stream: %w", err)
	}
	return &streamer{stream: stream}, nil
}

func (c *Client) prepareRequest(req model.Request) (sdk.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.ChatCompletionNewParams{}, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleSystem:
			messages = append(messages, sdk.SystemMessage(m.Content))
		case model.RoleAssistant:
			messages = append(messages, sdk.AssistantMessage(m.Content))
		default:
			messages = append(messages, sdk.UserMessage(m.Content))
		}
	}

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(modelID),
		Messages: messages,
	}
	temperature := float64(req.Temperature)
	if temperature <= 0 {
		temperature = c.temp
	}
	if temperature > 0 {
		params.Temperature = sdk.Float(temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}
	if req.JSON {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &sdk.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

func (s *streamer) Recv() (model.Chunk, error) {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		return model.Chunk{Text: delta}, nil
	}
	if err := s.stream.Err(); err != nil {
		return model.Chunk{}, err
	}
	return model.Chunk{}, io.EOF
}

func (s *streamer) Close() error {
	return s.stream.Close()
}

func isThrottled(err error) bool {
	var apierr *sdk.Error
	return errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests
}
