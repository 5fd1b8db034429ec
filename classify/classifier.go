package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/mentorit/ai"
	"github.com/poiesic/mentorit/core"
	"github.com/poiesic/mentorit/retry"
)

// Confidence band thresholds.
const (
	HighThreshold   = 0.8
	MediumThreshold = 0.6

	// DefaultSecondaryThreshold is the confidence a non-primary namespace
	// needs to become an additional upload target.
	DefaultSecondaryThreshold = 0.75

	// DefaultExcerptLength caps how much of a transcript the model sees.
	DefaultExcerptLength = 12000
)

// ErrModelRequired is returned when no classification model is supplied.
var ErrModelRequired = errors.New("classification model is required")

// Band is a coarse confidence level shown to operators.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// BandFor maps a confidence score to its band.
func BandFor(confidence float64) Band {
	switch {
	case confidence >= HighThreshold:
		return BandHigh
	case confidence >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

// Prediction is the ranked namespace guess for one transcript.
type Prediction struct {
	// Namespaces is sorted by descending confidence.
	Namespaces []core.NamespaceScore
	Primary    string
	Confidence float64
	Rationale  string
	// Fallback is true when the model gave nothing usable and the default
	// namespace was substituted.
	Fallback bool
}

// Band returns the confidence band of the primary namespace.
func (p *Prediction) Band() Band {
	return BandFor(p.Confidence)
}

// Targets returns the primary namespace plus every other namespace whose
// confidence reaches threshold.
func (p *Prediction) Targets(threshold float64) []string {
	if p.Primary == "" {
		return nil
	}
	targets := []string{p.Primary}
	for _, ns := range p.Namespaces {
		if ns.Name != p.Primary && ns.Confidence >= threshold {
			targets = append(targets, ns.Name)
		}
	}
	return targets
}

// Classifier predicts which knowledge namespaces a transcript belongs to.
type Classifier struct {
	model   ai.Completer
	known   []string
	policy  retry.Policy
	excerpt int
	logger  *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithKnownNamespaces restricts predictions to the given namespaces.
func WithKnownNamespaces(namespaces []string) Option {
	return func(c *Classifier) {
		c.known = nil
		for _, ns := range namespaces {
			if n, err := core.NormalizeNamespace(ns); err == nil {
				c.known = append(c.known, n)
			}
		}
	}
}

// WithRetryPolicy sets the policy applied to model calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Classifier) { c.policy = p }
}

// WithExcerptLength sets how many characters of the transcript are sent.
func WithExcerptLength(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.excerpt = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// NewClassifier creates a namespace classifier backed by model.
func NewClassifier(model ai.Completer, opts ...Option) (*Classifier, error) {
	if model == nil {
		return nil, ErrModelRequired
	}
	c := &Classifier{
		model:   model,
		policy:  retry.DefaultPolicy(),
		excerpt: DefaultExcerptLength,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "classifier")
	return c, nil
}

// KnownNamespaces returns the configured namespace set.
func (c *Classifier) KnownNamespaces() []string {
	return append([]string(nil), c.known...)
}

type response struct {
	Namespaces []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"namespaces"`
	Rationale string `json:"rationale"`
}

// Classify predicts namespaces for text. When the model output cannot be
// used, the prediction falls back to fallback with confidence 0. Only a
// model call that keeps failing after retries returns an error.
func (c *Classifier) Classify(ctx context.Context, text, fallback string) (*Prediction, error) {
	raw, err := retry.Value(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.model.Complete(ctx, c.systemPrompt(), excerpt(text, c.excerpt))
	})
	if err != nil {
		return nil, fmt.Errorf("classify namespace: %w", err)
	}

	pred := c.parse(raw)
	if pred == nil {
		c.logger.Warn("no usable namespace prediction, using fallback", "namespace", fallback)
		return &Prediction{
			Namespaces: []core.NamespaceScore{{Name: fallback}},
			Primary:    fallback,
			Fallback:   true,
		}, nil
	}
	return pred, nil
}

func (c *Classifier) parse(raw string) *Prediction {
	block, ok := ai.ExtractObject(raw)
	if !ok {
		return nil
	}
	var resp response
	if err := json.Unmarshal([]byte(block), &resp); err != nil {
		c.logger.Debug("malformed classification response", "err", err)
		return nil
	}

	best := make(map[string]float64)
	for _, item := range resp.Namespaces {
		name, err := core.NormalizeNamespace(item.Name)
		if err != nil || !c.isKnown(name) {
			continue
		}
		conf := clamp(item.Confidence)
		if prev, ok := best[name]; !ok || conf > prev {
			best[name] = conf
		}
	}
	if len(best) == 0 {
		return nil
	}

	scores := make([]core.NamespaceScore, 0, len(best))
	for name, conf := range best {
		scores = append(scores, core.NamespaceScore{Name: name, Confidence: conf})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Confidence != scores[j].Confidence {
			return scores[i].Confidence > scores[j].Confidence
		}
		return scores[i].Name < scores[j].Name
	})

	return &Prediction{
		Namespaces: scores,
		Primary:    scores[0].Name,
		Confidence: scores[0].Confidence,
		Rationale:  strings.TrimSpace(resp.Rationale),
	}
}

func (c *Classifier) isKnown(name string) bool {
	if len(c.known) == 0 {
		return true
	}
	for _, k := range c.known {
		if k == name {
			return true
		}
	}
	return false
}

func (c *Classifier) systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You sort transcripts into knowledge namespaces.\n\n")
	if len(c.known) > 0 {
		sb.WriteString("Choose only from these namespaces:\n")
		for _, ns := range c.known {
			sb.WriteString("- ")
			sb.WriteString(ns)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("Use short lower-case namespace names such as \"leadership\" or \"parenting\".\n\n")
	}
	sb.WriteString(`Rank every namespace the transcript clearly belongs to, with a confidence between 0 and 1.
Return only a JSON object of this form:
{"namespaces": [{"name": "...", "confidence": 0.0}], "rationale": "one sentence"}`)
	return sb.String()
}

func excerpt(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit])
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
