package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, opts Options) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.GoogleAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: opts.Model}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	model := c.client.GenerativeModel(c.model)
	model.SetTemperature(params.Temperature)
	if params.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(params.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", Unavailable("gemini", geminiStatus(err), fmt.Errorf("generate gemini content: %w", err))
	}

	var b strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	if b.Len() == 0 {
		return "", Unavailable("gemini", 0, errors.New("gemini response contained no text"))
	}
	return b.String(), nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

func geminiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.ResourceExhausted {
		return http.StatusTooManyRequests
	}
	return 0
}

var _ Client = (*GeminiClient)(nil)
