package mock

import "github.com/poiesic/mentorit/ai"

// MockProvider is a test double for ai.AIProvider.
type MockProvider struct {
	embedder   *MockEmbedder
	generator  *MockCompleter
	classifier *MockCompleter
}

// Option customizes a MockProvider.
type Option func(*MockProvider)

// WithEmbedder replaces the default embedder.
func WithEmbedder(e *MockEmbedder) Option {
	return func(p *MockProvider) { p.embedder = e }
}

// WithGenerator replaces the default generator.
func WithGenerator(c *MockCompleter) Option {
	return func(p *MockProvider) { p.generator = c }
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *MockCompleter) Option {
	return func(p *MockProvider) { p.classifier = c }
}

// NewMockProvider creates a provider backed by mocks.
func NewMockProvider(opts ...Option) *MockProvider {
	p := &MockProvider{
		embedder:   NewMockEmbedder(),
		generator:  NewMockCompleter(),
		classifier: NewMockCompleter(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ ai.AIProvider = (*MockProvider)(nil)

func (p *MockProvider) Embedder() ai.Embedder    { return p.embedder }
func (p *MockProvider) Generator() ai.Completer  { return p.generator }
func (p *MockProvider) Classifier() ai.Completer { return p.classifier }
func (p *MockProvider) Close() error             { return nil }

// GetMockEmbedder returns the concrete embedder for assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder { return p.embedder }

// GetMockGenerator returns the concrete generator for assertions.
func (p *MockProvider) GetMockGenerator() *MockCompleter { return p.generator }

// GetMockClassifier returns the concrete classifier for assertions.
func (p *MockProvider) GetMockClassifier() *MockCompleter { return p.classifier }
