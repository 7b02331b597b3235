package outbound

import "context"

// ImageAnalysisService defines the interface for extracting content from
// rulebook images and generating embeddings for extracted text.
type ImageAnalysisService interface {
	// AnalyzeImage runs the vision model over one image and returns the
	// extracted content. Individual fields may be empty when the image
	// carries no matching content; the result is only an error when the
	// model call itself fails.
	AnalyzeImage(ctx context.Context, imageData []byte, contentType string) (*ImageAnalysis, error)

	// GenerateEmbedding generates an embedding vector for a given text.
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// GenerateBatchEmbeddings generates embeddings for multiple texts in
	// a single request, preserving input order.
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)

	// TestConnection verifies the model endpoint is reachable with the
	// configured credentials.
	TestConnection(ctx context.Context) error
}

// ImageAnalysis holds the content extracted from one image.
type ImageAnalysis struct {
	// OCRText is the verbatim text read off the image.
	OCRText string

	// Description is the model's visual description of the image.
	Description string

	// Labels are the game concepts and elements the model detected.
	Labels []string
}
