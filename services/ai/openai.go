package aisvc

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/trezcool/tathmini/core"
)

// OpenAIService completes chats through the OpenAI chat completion API.
type OpenAIService struct {
	client      *openai.Client
	model       string
	temperature float32
}

var _ core.ChatCompleter = (*OpenAIService)(nil)

func NewOpenAIService(conf *core.Config) *OpenAIService {
	return &OpenAIService{
		client:      openai.NewClient(conf.AI.ApiKey),
		model:       conf.AI.Model,
		temperature: conf.AI.Temperature,
	}
}

func (svc *OpenAIService) Complete(ctx context.Context, req core.ChatRequest) (string, error) {
	var messages []openai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}

	usr := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(req.ImageURLs) == 0 {
		usr.Content = req.Prompt
	} else {
		usr.MultiContent = append(usr.MultiContent, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: req.Prompt})
		for _, url := range req.ImageURLs {
			usr.MultiContent = append(usr.MultiContent, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailHigh},
			})
		}
	}
	messages = append(messages, usr)

	chatReq := openai.ChatCompletionRequest{
		Model:       svc.model,
		Messages:    messages,
		Temperature: svc.temperature,
	}
	if req.JSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := svc.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError marks client errors other than rate limiting as permanent.
func classifyOpenAIError(err error) error {
	var (
		apiErr *openai.APIError
		reqErr *openai.RequestError
		status int
	)
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	err = errors.Wrap(err, "openai")
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests && status != http.StatusRequestTimeout {
		return Permanent(err)
	}
	return err
}
