package openai

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/poiesic/mentorit/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoChoices is returned when the model produced no output.
var ErrNoChoices = errors.New("model returned no choices")

// Completer implements ai.Completer with a chat model.
type Completer struct {
	client      llms.Model
	temperature float64
	logger      *slog.Logger
}

var _ ai.Completer = (*Completer)(nil)

func newCompleter(host, model, apiKey string, temperature float64, name string) (*Completer, error) {
	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(tokenOrNone(apiKey)),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &Completer{
		client:      client,
		temperature: temperature,
		logger:      slog.Default().With("component", "openai-"+name, "model", model),
	}, nil
}

// NewGenerator creates the completer used for anonymization and chunk extraction.
func NewGenerator(config *ai.Config) (ai.Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newCompleter(config.GeneratorHost, config.GeneratorModel, config.APIKey, 0.2, "generator")
}

// NewClassifier creates the completer used for verification and namespace prediction.
func NewClassifier(config *ai.Config) (ai.Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return newCompleter(config.ClassifierHost, config.ClassifierModel, config.APIKey, 0.0, "classifier")
}

// Complete sends the system and user prompts and returns the first choice.
func (c *Completer) Complete(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, sanitize(user)),
	}

	response, err := c.client.GenerateContent(ctx, content, llms.WithTemperature(c.temperature))
	if err != nil {
		c.logger.Error("failed to generate content", "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ErrNoChoices
	}
	c.logger.Debug("completion finished", "input", len(user), "output", len(response.Choices[0].Content))
	return response.Choices[0].Content, nil
}

// sanitize drops NUL and other control characters that some servers reject,
// keeping newlines and tabs.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func tokenOrNone(key string) string {
	if key == "" {
		return "none"
	}
	return key
}
