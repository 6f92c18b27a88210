package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error wrapping core.ErrTransientProvider if the service fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Analyzer inspects a message and reports what kind of message it is.
// Implementations must be thread-safe for concurrent use.
type Analyzer interface {
	// Analyze returns the provider's raw view of a message. Output is
	// unvalidated: categories and fact keys may be outside the known sets.
	// Transport failures wrap core.ErrTransientProvider; unusable output wraps
	// core.ErrClassification.
	Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error)
}

// Composer drafts a reply to a message.
// Implementations must be thread-safe for concurrent use.
type Composer interface {
	// Compose drafts a reply. Transport failures wrap core.ErrTransientProvider;
	// unusable output wraps core.ErrGeneration.
	Compose(ctx context.Context, req CompositionRequest) (*Composition, error)
}

// AnalysisRequest is the input to Analyzer.Analyze.
type AnalysisRequest struct {
	Sender  string
	Subject string
	Body    string
}

// Analysis is the provider's answer for one message.
type Analysis struct {
	// Category is a free-form category label.
	Category string

	// Priority is a 1-5 rating, 0 when the provider gave none.
	Priority int

	// Keywords are the salient topics of the message.
	Keywords []string

	// Facts holds extracted fields keyed by free-form names.
	Facts map[string]string

	// RequiresResponse reports whether the sender expects an answer.
	RequiresResponse bool

	// Sentiment is positive, negative, or neutral.
	Sentiment string

	// Reasoning is a short explanation, kept for audit logs.
	Reasoning string
}

// CompositionRequest is the input to Composer.Compose.
type CompositionRequest struct {
	Sender   string
	Subject  string
	Body     string
	Category string
	Facts    map[string]string

	// Context holds retrieved knowledge snippets in rank order.
	Context []string
}

// Composition is a drafted reply.
type Composition struct {
	Reply string

	// ResponseType is "reply" or "none".
	ResponseType string

	// Confidence is the provider's self-rating in [0,1], or -1 when absent.
	Confidence float64

	SuggestedActions []string
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Analyzer returns the message analysis service.
	Analyzer() Analyzer

	// Composer returns the reply drafting service.
	Composer() Composer

	// Close releases resources held by the provider and its services.
	Close() error
}
