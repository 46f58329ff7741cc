package imagegen

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"asset-studio/internal/domain/model"
	"asset-studio/internal/domain/ports/adapter"
)

var _ adapter.GenerationClient = (*GeminiClient)(nil)

// GeminiClient implements adapter.GenerationClient with an image-capable
// Gemini model: the prompt (plus the source image for transforms) goes in as
// content and the generated image comes back as inline data.
type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClient(ctx context.Context, apiKey, baseURL, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{client: c, model: model}, nil
}

func (g *GeminiClient) Provider() string { return "gemini" }

func (g *GeminiClient) Generate(ctx context.Context, req adapter.GenerateRequest) (*model.Asset, error) {
	prompt := fmt.Sprintf("%s (render at %dx%d)", req.Prompt, req.Width, req.Height)
	if req.Seed != "" {
		prompt += " [seed:" + req.Seed + "]"
	}
	parts := []*genai.Part{{Text: prompt}}
	return g.call(ctx, parts, req.Width, req.Height)
}

func (g *GeminiClient) Transform(ctx context.Context, req adapter.TransformRequest) (*model.Asset, error) {
	mime := req.Source.MIME
	if mime == "" {
		mime = "image/png"
	}
	instruction := fmt.Sprintf(
		"Redraw the subject of this image facing %s, keeping style, palette and proportions identical. Render at %dx%d.",
		req.Direction, req.Width, req.Height,
	)
	parts := []*genai.Part{
		{Text: instruction},
		{InlineData: &genai.Blob{MIMEType: mime, Data: req.Source.Data}},
	}
	return g.call(ctx, parts, req.Width, req.Height)
}

func (g *GeminiClient) call(ctx context.Context, parts []*genai.Part, w, h int) (*model.Asset, error) {
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, adapter.NewGenerationError("gemini generation failed", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, adapter.NewGenerationError("gemini returned no candidates", nil)
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			mime := part.InlineData.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return &model.Asset{Data: part.InlineData.Data, MIME: mime, Width: w, Height: h}, nil
		}
	}
	return nil, adapter.NewGenerationError("gemini response carried no image", nil)
}
