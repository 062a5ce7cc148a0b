// Package vision asks a multimodal language model to describe ground-level
// imagery of a planting spot.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"log"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/lox/releaf/internal/metrics"
)

const (
	DefaultModel = "gpt-4o-mini"

	// images are downscaled so their longest side fits this many pixels
	maxImageDim = 1024
	maxTokens   = 1000
)

var ErrEmptyResponse = errors.New("empty model response")

// Client sends an image and prompt to an OpenAI-compatible chat completion API.
type Client struct {
	client  openai.Client
	model   string
	breaker *gobreaker.CircuitBreaker[string]
}

type config struct {
	model      string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	tripAfter  uint32
}

type Option func(*config)

func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithTripAfter opens the circuit after n consecutive failed calls.
func WithTripAfter(n uint32) Option {
	return func(c *config) { c.tripAfter = n }
}

// New returns a client for the chat completions API. apiKey is required.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not set")
	}
	cfg := config{model: DefaultModel, maxRetries: 2, tripAfter: 5}
	for _, opt := range opts {
		opt(&cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.maxRetries),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}

	tripAfter := cfg.tripAfter
	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "vision",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= tripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("vision: circuit %s %s -> %s", name, from, to)
		},
	})

	return &Client{
		client:  openai.NewClient(reqOpts...),
		model:   cfg.model,
		breaker: breaker,
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

// Analyze submits the image with the prompt and returns the model's raw text.
func (c *Client) Analyze(ctx context.Context, img []byte, prompt string) (string, error) {
	dataURL, err := encodeImage(img)
	if err != nil {
		return "", err
	}

	return c.breaker.Execute(func() (string, error) {
		start := time.Now()
		resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(c.model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
					openai.TextContentPart(prompt),
					openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: dataURL,
					}),
				}),
			},
			MaxCompletionTokens: openai.Int(maxTokens),
		})
		metrics.VisionLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			return "", fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			return "", ErrEmptyResponse
		}
		return resp.Choices[0].Message.Content, nil
	})
}

// encodeImage returns a JPEG data URL, downscaling large images. Undecodable input
// is passed through with its sniffed content type.
func encodeImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("encode image: no data")
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		mime := http.DetectContentType(data)
		return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}

	b := src.Bounds()
	var out image.Image = src
	if longest := max(b.Dx(), b.Dy()); longest > maxImageDim {
		scale := float64(maxImageDim) / float64(longest)
		dst := image.NewRGBA(image.Rect(0, 0, max(1, int(float64(b.Dx())*scale)), max(1, int(float64(b.Dy())*scale))))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 85}); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
