package aisvc

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/trezcool/tathmini/core"
)

const maxImageSize = 20 << 20

// GeminiService completes chats through the Gemini API.
// Images are downloaded and sent inline since Gemini does not fetch arbitrary URLs.
type GeminiService struct {
	client      *genai.Client
	model       string
	temperature float32
	httpClient  *http.Client
}

var _ core.ChatCompleter = (*GeminiService)(nil)

func NewGeminiService(ctx context.Context, conf *core.Config) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(conf.AI.ApiKey))
	if err != nil {
		return nil, errors.Wrap(err, "creating gemini client")
	}
	return &GeminiService{
		client:      client,
		model:       conf.AI.Model,
		temperature: conf.AI.Temperature,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (svc *GeminiService) Close() error {
	return svc.client.Close()
}

func (svc *GeminiService) Complete(ctx context.Context, req core.ChatRequest) (string, error) {
	model := svc.client.GenerativeModel(svc.model)
	model.SetTemperature(svc.temperature)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	for _, url := range req.ImageURLs {
		blob, err := svc.fetchImage(ctx, url)
		if err != nil {
			return "", err
		}
		parts = append(parts, blob)
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", errors.Wrap(err, "gemini")
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}

func (svc *GeminiService) fetchImage(ctx context.Context, url string) (genai.Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return genai.Blob{}, Permanent(errors.Wrap(err, "building image request"))
	}
	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return genai.Blob{}, errors.Wrap(err, "downloading image")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return genai.Blob{}, errors.Errorf("downloading image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return genai.Blob{}, errors.Wrap(err, "reading image")
	}
	mimeType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	return genai.Blob{MIMEType: mimeType, Data: data}, nil
}
