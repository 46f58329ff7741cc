package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"asset-studio/internal/domain/model"
	"asset-studio/internal/domain/ports/adapter"
)

var _ adapter.GenerationClient = (*OpenAIClient)(nil)

// OpenAIClient implements adapter.GenerationClient using the Images API.
// The API has no seed parameter, so GenerateRequest.Seed is folded into the
// prompt to keep repeat submissions at least stable in intent.
type OpenAIClient struct {
	client openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "gpt-image-1"
	}
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (o *OpenAIClient) Provider() string { return "openai" }

func (o *OpenAIClient) Generate(ctx context.Context, req adapter.GenerateRequest) (*model.Asset, error) {
	prompt := req.Prompt
	if req.Seed != "" {
		prompt = prompt + " [seed:" + req.Seed + "]"
	}

	params := openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(o.model),
		N:      openai.Int(1),
		Size:   imageSize(req.Width, req.Height),
	}
	// dall-e models default to URL responses; gpt-image-1 always returns
	// base64 and rejects the parameter.
	if strings.HasPrefix(o.model, "dall-e") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}

	resp, err := o.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, adapter.NewGenerationError("openai image generation failed", err)
	}
	return o.decode(resp, req.Width, req.Height)
}

func (o *OpenAIClient) Transform(ctx context.Context, req adapter.TransformRequest) (*model.Asset, error) {
	mime := req.Source.MIME
	if mime == "" {
		mime = "image/png"
	}
	params := openai.ImageEditParams{
		Image: openai.ImageEditParamsImageUnion{
			OfFile: openai.File(bytes.NewReader(req.Source.Data), "source.png", mime),
		},
		Prompt: "Redraw the subject facing " + string(req.Direction) +
			", keeping style, palette and proportions identical.",
		Model: openai.ImageModel(o.model),
		N:     openai.Int(1),
		Size:  openai.ImageEditParamsSize(imageSize(req.Width, req.Height)),
	}
	resp, err := o.client.Images.Edit(ctx, params)
	if err != nil {
		return nil, adapter.NewGenerationError("openai image edit failed", err)
	}
	return o.decode(resp, req.Width, req.Height)
}

func (o *OpenAIClient) decode(resp *openai.ImagesResponse, w, h int) (*model.Asset, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, adapter.NewGenerationError("openai returned no image", nil)
	}
	b64 := resp.Data[0].B64JSON
	if b64 == "" {
		return nil, adapter.NewGenerationError("openai response carried no image payload", nil)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, adapter.NewGenerationError("malformed openai image payload", err)
	}
	return &model.Asset{Data: data, MIME: "image/png", Width: w, Height: h}, nil
}

// imageSize maps the requested dimensions onto the nearest size the Images
// API supports.
func imageSize(w, h int) openai.ImageGenerateParamsSize {
	switch {
	case w > h:
		return openai.ImageGenerateParamsSize1536x1024
	case h > w:
		return openai.ImageGenerateParamsSize1024x1536
	default:
		return openai.ImageGenerateParamsSize1024x1024
	}
}
