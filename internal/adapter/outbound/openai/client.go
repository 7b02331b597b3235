// Package openai provides a thin wrapper around the official OpenAI Go
// SDK for vision analysis and embeddings.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/slogger"
	"github.com/shini559/Gaming-advisor-sub000/internal/config"
	"github.com/shini559/Gaming-advisor-sub000/internal/port/outbound"
)

var (
	// ErrEmptyInput is returned when an embedding is requested for empty text.
	ErrEmptyInput = errors.New("openai: input text is empty")
	// ErrEmptyImage is returned when AnalyzeImage is called without image data.
	ErrEmptyImage = errors.New("openai: image data is empty")
	// ErrNoEmbeddingInResponse is returned when the API response contains no embedding data.
	ErrNoEmbeddingInResponse = errors.New("openai: no embedding in response")
	// ErrDimensionMismatch is returned when the response embedding length does not match configured dimensions.
	ErrDimensionMismatch = errors.New("openai: embedding dimension mismatch")
	// ErrAnalysisFailed is returned when every extraction call failed, which
	// means the model endpoint is effectively unreachable.
	ErrAnalysisFailed = errors.New("openai: all vision extractions failed")
)

// Defaults applied when the corresponding config values are unset.
const (
	defaultVisionModel    = "gpt-4o"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultDimensions     = 1536
)

// Per-extraction completion budgets. OCR carries the most text, labels
// the least.
const (
	ocrMaxTokens         = 1500
	descriptionMaxTokens = 800
	labelsMaxTokens      = 300
)

// Extraction prompts. Labels are requested comma-separated so the
// response parses without a JSON roundtrip.
const (
	ocrPrompt = "Extract all readable text from this board game rulebook image. " +
		"Preserve the reading order and section structure. " +
		"Return only the extracted text, without commentary. " +
		"If the image contains no text, return an empty response."

	descriptionPrompt = "Describe the visual content of this board game rulebook image: " +
		"diagrams, illustrations, board layouts, cards, tokens and other components, " +
		"and how they relate to the rules being explained. " +
		"Keep the description factual and concise."

	labelsPrompt = "List the board game concepts, components and actions visible in " +
		"this image as short labels separated by commas. " +
		"Return only the comma-separated labels."
)

// Client calls the OpenAI vision and embeddings APIs via the official SDK.
type Client struct {
	sdk            openaisdk.Client
	visionModel    string
	embeddingModel string
	dimensions     int
}

// NewClient creates an OpenAI client from the configured models and key.
func NewClient(cfg config.OpenAIConfig) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = defaultVisionModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}

	return &Client{
		sdk:            openaisdk.NewClient(opts...),
		visionModel:    visionModel,
		embeddingModel: embeddingModel,
		dimensions:     dimensions,
	}
}

// Dimensions returns the embedding dimension this client requests. It
// must match the vector columns the embeddings are stored in.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// AnalyzeImage runs the three extractions over one image concurrently.
// A single failed extraction leaves its field empty; the call as a whole
// fails only when every extraction failed.
func (c *Client) AnalyzeImage(ctx context.Context, imageData []byte, contentType string) (*outbound.ImageAnalysis, error) {
	if len(imageData) == 0 {
		return nil, ErrEmptyImage
	}

	dataURL := imageDataURL(imageData, contentType)

	var wg sync.WaitGroup
	results := make([]string, 3)
	callErrs := make([]error, 3)

	extractions := []struct {
		name      string
		prompt    string
		maxTokens int
	}{
		{"ocr", ocrPrompt, ocrMaxTokens},
		{"description", descriptionPrompt, descriptionMaxTokens},
		{"labels", labelsPrompt, labelsMaxTokens},
	}

	for i, extraction := range extractions {
		wg.Add(1)
		go func(slot int, name, prompt string, maxTokens int) {
			defer wg.Done()
			content, err := c.complete(ctx, prompt, dataURL, maxTokens)
			if err != nil {
				slogger.Warn(ctx, "Vision extraction failed", slogger.Fields{
					"extraction": name,
					"error":      err.Error(),
				})
				callErrs[slot] = err
				return
			}
			results[slot] = strings.TrimSpace(content)
		}(i, extraction.name, extraction.prompt, extraction.maxTokens)
	}
	wg.Wait()

	if callErrs[0] != nil && callErrs[1] != nil && callErrs[2] != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisFailed, errors.Join(callErrs...))
	}

	return &outbound.ImageAnalysis{
		OCRText:     results[0],
		Description: results[1],
		Labels:      parseLabels(results[2]),
	}, nil
}

// GenerateEmbedding returns the embedding vector for the given text. The
// returned slice length equals the configured dimensions.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
		Model:      openaisdk.EmbeddingModel(c.embeddingModel),
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbeddingInResponse
	}

	return c.convertEmbedding(resp.Data[0].Embedding)
}

// GenerateBatchEmbeddings embeds multiple texts in a single request,
// preserving input order.
func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, ErrEmptyInput
		}
	}

	resp, err := c.sdk.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Input: openaisdk.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model:      openaisdk.EmbeddingModel(c.embeddingModel),
		Dimensions: param.NewOpt(int64(c.dimensions)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai batch embedding: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			ErrNoEmbeddingInResponse, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || int(item.Index) >= len(texts) {
			return nil, fmt.Errorf("openai batch embedding: response index %d out of range", item.Index)
		}
		embedding, err := c.convertEmbedding(item.Embedding)
		if err != nil {
			return nil, err
		}
		out[item.Index] = embedding
	}

	return out, nil
}

// TestConnection issues a minimal completion to verify the endpoint and
// credentials.
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.visionModel),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage("Test connection"),
		},
		MaxTokens: param.NewOpt(int64(1)),
	})
	if err != nil {
		return fmt.Errorf("openai connection test: %w", err)
	}
	return nil
}

func (c *Client) complete(ctx context.Context, prompt, imageURL string, maxTokens int) (string, error) {
	resp, err := c.sdk.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.visionModel),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage([]openaisdk.ChatCompletionContentPartUnionParam{
				openaisdk.TextContentPart(prompt),
				openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{
					URL: imageURL,
				}),
			}),
		},
		MaxTokens: param.NewOpt(int64(maxTokens)),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) convertEmbedding(embedding []float64) ([]float32, error) {
	if len(embedding) != c.dimensions {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), c.dimensions)
	}

	out := make([]float32, len(embedding))
	for i := range embedding {
		out[i] = float32(embedding[i])
	}
	return out, nil
}

// imageDataURL builds the inline data URL for one image. The declared
// content type wins when it names an image; otherwise the type is
// detected from the bytes.
func imageDataURL(imageData []byte, contentType string) string {
	mediaType := contentType
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(imageData)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(imageData)
}

// parseLabels splits a comma-separated label response into trimmed,
// non-empty labels.
func parseLabels(response string) []string {
	if response == "" {
		return nil
	}

	parts := strings.Split(response, ",")
	labels := make([]string, 0, len(parts))
	for _, part := range parts {
		label := strings.TrimSpace(part)
		if label == "" {
			continue
		}
		labels = append(labels, label)
	}

	if len(labels) == 0 {
		return nil
	}
	return labels
}
