package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carelink-ai/callbridge/types"
)

// Well-known label prefixes. The service may return finer-grained labels
// ("negative_anxious"); shift logic keys off these prefixes.
const (
	LabelNegative = "negative"
	LabelPositive = "positive"
	LabelNeutral  = "neutral"
)

// IsNegative reports whether a label counts as negative tone.
func IsNegative(label string) bool {
	return strings.HasPrefix(strings.ToLower(label), LabelNegative)
}

// IsPositive reports whether a label counts as positive tone.
func IsPositive(label string) bool {
	return strings.HasPrefix(strings.ToLower(label), LabelPositive)
}

// Config configures the HTTP scorer.
type Config struct {
	// URL is the scoring endpoint, e.g. "http://sentiment:9100/v1/score".
	URL string `yaml:"url" json:"url"`

	// APIKey is sent as a bearer token when set.
	APIKey string `yaml:"api_key" json:"api_key"`

	// Timeout bounds each scoring request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// HTTPScorer scores dialogue windows against the sentiment service. One
// request returns one label for the whole window.
type HTTPScorer struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewHTTPScorer creates a scorer.
func NewHTTPScorer(cfg Config, logger *zap.Logger) *HTTPScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPScorer{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "sentiment_scorer")),
	}
}

// Score returns a single sentiment label for the given transcript lines.
// All failures, including context cancellation, surface as transient
// analysis errors.
func (s *HTTPScorer) Score(ctx context.Context, lines []string) (string, error) {
	body, err := json.Marshal(map[string]any{"lines": lines})
	if err != nil {
		return "", types.NewError(types.ErrTransientAnalysis, "marshal scoring request").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewError(types.ErrTransientAnalysis, "build scoring request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrTransientAnalysis, "sentiment request failed").WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.NewError(types.ErrTransientAnalysis, fmt.Sprintf("sentiment service status %d", resp.StatusCode)).WithRetryable(true)
	}

	var out struct {
		Sentiment string `json:"sentiment"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewError(types.ErrTransientAnalysis, "decode sentiment response").WithCause(err)
	}
	if out.Sentiment == "" {
		return "", types.NewError(types.ErrTransientAnalysis, "sentiment response missing label")
	}
	return strings.ToLower(out.Sentiment), nil
}
