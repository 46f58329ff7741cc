package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"asset-studio/internal/domain/model"
	"asset-studio/internal/domain/ports/adapter"
)

// Compile-time assurance this client satisfies the port
var _ adapter.GenerationClient = (*HTTPClient)(nil)

// HTTPClient talks to a self-hosted generation backend over plain JSON.
// Expected endpoints: POST {base}/v1/generate and POST {base}/v1/transform,
// both answering {"image_b64": ..., "mime": ..., "width": ..., "height": ...}.
type HTTPClient struct {
	base   string
	client *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, errors.New("generation backend url empty")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (h *HTTPClient) Provider() string { return "http" }

func (h *HTTPClient) Generate(ctx context.Context, req adapter.GenerateRequest) (*model.Asset, error) {
	body := struct {
		Prompt string `json:"prompt"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		Seed   string `json:"seed,omitempty"`
	}{req.Prompt, req.Width, req.Height, req.Seed}
	return h.post(ctx, "/v1/generate", body)
}

func (h *HTTPClient) Transform(ctx context.Context, req adapter.TransformRequest) (*model.Asset, error) {
	body := struct {
		ImageB64  string `json:"image_b64"`
		MIME      string `json:"mime,omitempty"`
		Direction string `json:"direction"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	}{
		ImageB64:  base64.StdEncoding.EncodeToString(req.Source.Data),
		MIME:      req.Source.MIME,
		Direction: string(req.Direction),
		Width:     req.Width,
		Height:    req.Height,
	}
	return h.post(ctx, "/v1/transform", body)
}

// post performs the single call and normalizes every failure mode: transport
// errors, non-2xx responses and malformed payloads all come back as a
// *adapter.GenerationError.
func (h *HTTPClient) post(ctx context.Context, path string, body any) (*model.Asset, error) {
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base+path, bytes.NewReader(b))
	if err != nil {
		return nil, adapter.NewGenerationError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, adapter.NewGenerationError("generation backend unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		msg := fmt.Sprintf("generation backend returned %d", resp.StatusCode)
		if apiErr.Error != "" {
			msg = apiErr.Error
		}
		return nil, adapter.NewGenerationError(msg, fmt.Errorf("http %d", resp.StatusCode))
	}

	var payload struct {
		ImageB64 string `json:"image_b64"`
		MIME     string `json:"mime"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, adapter.NewGenerationError("malformed backend response", err)
	}
	data, err := base64.StdEncoding.DecodeString(payload.ImageB64)
	if err != nil || len(data) == 0 {
		return nil, adapter.NewGenerationError("backend response carried no image", err)
	}

	mime := payload.MIME
	if mime == "" {
		mime = "image/png"
	}
	return &model.Asset{Data: data, MIME: mime, Width: payload.Width, Height: payload.Height}, nil
}
