package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"asset-studio/internal/domain/model"
	"asset-studio/internal/domain/ports/adapter"
)

func TestHTTPClientGenerate(t *testing.T) {
	image := []byte{0x89, 0x50, 0x4e, 0x47}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Prompt string `json:"prompt"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Prompt != "a red barn" || req.Width != 512 {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"image_b64": base64.StdEncoding.EncodeToString(image),
			"mime":      "image/png",
			"width":     512,
			"height":    512,
		})
	}))
	defer backend.Close()

	client, err := NewHTTPClient(backend.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	asset, err := client.Generate(context.Background(), adapter.GenerateRequest{
		Prompt: "a red barn", Width: 512, Height: 512,
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(asset.Data) != string(image) || asset.MIME != "image/png" || asset.Width != 512 {
		t.Fatalf("asset = %+v", asset)
	}
}

func TestHTTPClientTransform(t *testing.T) {
	source := model.Asset{Data: []byte{1, 2, 3}, MIME: "image/png"}
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transform" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			ImageB64  string `json:"image_b64"`
			Direction string `json:"direction"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Direction != "west" {
			t.Errorf("direction = %s", req.Direction)
		}
		decoded, _ := base64.StdEncoding.DecodeString(req.ImageB64)
		if string(decoded) != string(source.Data) {
			t.Errorf("source bytes did not round-trip")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"image_b64": base64.StdEncoding.EncodeToString([]byte{9}),
		})
	}))
	defer backend.Close()

	client, err := NewHTTPClient(backend.URL, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	asset, err := client.Transform(context.Background(), adapter.TransformRequest{
		Source: source, Direction: model.DirectionWest, Width: 64, Height: 64,
	})
	if err != nil {
		t.Fatal(err)
	}
	if asset.MIME != "image/png" {
		t.Fatalf("missing mime should default to image/png, got %q", asset.MIME)
	}
}

func TestHTTPClientErrorPaths(t *testing.T) {
	t.Run("backend error with message", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
		}))
		defer backend.Close()

		client, _ := NewHTTPClient(backend.URL, time.Second)
		_, err := client.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", Width: 1, Height: 1})
		genErr := adapter.AsGenerationError(err)
		if genErr == nil || genErr.Message != "rate limited" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("backend error without message", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer backend.Close()

		client, _ := NewHTTPClient(backend.URL, time.Second)
		_, err := client.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", Width: 1, Height: 1})
		genErr := adapter.AsGenerationError(err)
		if genErr == nil || genErr.Message != "generation backend returned 500" {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer backend.Close()

		client, _ := NewHTTPClient(backend.URL, time.Second)
		_, err := client.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", Width: 1, Height: 1})
		if adapter.AsGenerationError(err) == nil {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("empty image", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{"image_b64": ""})
		}))
		defer backend.Close()

		client, _ := NewHTTPClient(backend.URL, time.Second)
		_, err := client.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", Width: 1, Height: 1})
		if adapter.AsGenerationError(err) == nil {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("unreachable backend", func(t *testing.T) {
		client, _ := NewHTTPClient("http://127.0.0.1:1", time.Second)
		_, err := client.Generate(context.Background(), adapter.GenerateRequest{Prompt: "p", Width: 1, Height: 1})
		if adapter.AsGenerationError(err) == nil {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Drain the body so the server starts its background read; without
			// it the client disconnect is never observed and r.Context() is
			// never cancelled (net/http starts the read only at body EOF).
			_, _ = io.Copy(io.Discard, r.Body)
			<-r.Context().Done()
		}))
		defer backend.Close()

		client, _ := NewHTTPClient(backend.URL, time.Minute)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := client.Generate(ctx, adapter.GenerateRequest{Prompt: "p", Width: 1, Height: 1})
		if err == nil {
			t.Fatal("expected error after cancellation")
		}
	})
}

func TestNewHTTPClientValidation(t *testing.T) {
	if _, err := NewHTTPClient("", time.Second); err == nil {
		t.Fatal("empty base url accepted")
	}
}
