package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/mentorit/retry"
	"github.com/poiesic/mentorit/storage"
)

const (
	defaultAPIVersion = "2025-10"
	defaultControlURL = "https://api.pinecone.io"
	defaultTimeout    = 30 * time.Second
)

var (
	// ErrMissingAPIKey is returned when no API key is configured.
	ErrMissingAPIKey = errors.New("missing Pinecone API key")

	// ErrMissingIndex is returned when neither an index host nor an index name is configured.
	ErrMissingIndex = errors.New("pinecone index host or name required")
)

// HTTPError is a non-2xx response from Pinecone.
type HTTPError struct {
	Op     string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("pinecone %s http %d: %s", e.Op, e.Status, e.Body)
}

// Config configures the Pinecone data plane client.
type Config struct {
	APIKey     string
	APIVersion string
	// IndexHost is the data plane host. A bare host gets an https scheme.
	IndexHost string
	// IndexName is used to resolve IndexHost through the control plane when
	// IndexHost is empty.
	IndexName  string
	ControlURL string
	Timeout    time.Duration
}

// Store is a storage.VectorStore backed by a Pinecone serverless index.
type Store struct {
	cfg    Config
	base   string
	http   *http.Client
	logger *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// New creates a Store, resolving the index host via describe_index when only
// an index name is configured.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if strings.TrimSpace(cfg.ControlURL) == "" {
		cfg.ControlURL = defaultControlURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	s := &Store{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: slog.Default().With("component", "pinecone"),
	}

	host := strings.TrimSpace(cfg.IndexHost)
	if host == "" {
		if strings.TrimSpace(cfg.IndexName) == "" {
			return nil, ErrMissingIndex
		}
		desc, err := s.describeIndex(ctx, cfg.IndexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = desc.Host
		s.logger.Warn("index host not configured; resolved via describe_index",
			"index_name", cfg.IndexName, "index_host", host)
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	s.base = strings.TrimRight(host, "/")
	return s, nil
}

// -------------------- Control plane --------------------

type indexDescription struct {
	Name      string `json:"name"`
	Host      string `json:"host"`
	Dimension int    `json:"dimension"`
}

func (s *Store) describeIndex(ctx context.Context, name string) (*indexDescription, error) {
	u := strings.TrimRight(s.cfg.ControlURL, "/") + "/indexes/" + url.PathEscape(name)
	out, err := doJSON[indexDescription](ctx, s, "describe_index", http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.Host) == "" {
		return nil, fmt.Errorf("pinecone describe_index returned empty host")
	}
	return out, nil
}

// -------------------- Data plane --------------------

type wireVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// readVector is the response shape; Pinecone may return numbers or lists in
// metadata written by other clients.
type readVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []wireVector `json:"vectors"`
	Namespace string       `json:"namespace"`
}

type upsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// Upsert writes vectors into a namespace.
func (s *Store) Upsert(ctx context.Context, namespace string, vectors []storage.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	req := upsertRequest{Namespace: namespace, Vectors: make([]wireVector, len(vectors))}
	for i, v := range vectors {
		req.Vectors[i] = wireVector{ID: v.ID, Values: v.Values, Metadata: wireMetadata(v)}
	}
	out, err := doJSON[upsertResponse](ctx, s, "upsert", http.MethodPost, s.base+"/vectors/upsert", req)
	if err != nil {
		return err
	}
	if out.UpsertedCount != len(vectors) {
		return fmt.Errorf("pinecone upsert: upserted %d of %d vectors", out.UpsertedCount, len(vectors))
	}
	return nil
}

type queryRequest struct {
	Namespace       string    `json:"namespace"`
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type queryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata,omitempty"`
	} `json:"matches"`
}

// Query returns the topK nearest vectors with metadata.
func (s *Store) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]storage.Match, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}
	out, err := doJSON[queryResponse](ctx, s, "query", http.MethodPost, s.base+"/query", queryRequest{
		Namespace:       namespace,
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	matches := make([]storage.Match, 0, len(out.Matches))
	for _, m := range out.Matches {
		matches = append(matches, storage.Match{
			ID:       m.ID,
			Score:    float32(m.Score),
			Metadata: stringifyMetadata(m.Metadata),
		})
	}
	return matches, nil
}

type listResponse struct {
	Vectors []struct {
		ID string `json:"id"`
	} `json:"vectors"`
	Pagination *struct {
		Next string `json:"next"`
	} `json:"pagination,omitempty"`
}

// ListPaginated lists vector IDs in a namespace.
func (s *Store) ListPaginated(ctx context.Context, namespace string, limit int, token string) (*storage.ListPage, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}
	q := url.Values{}
	q.Set("namespace", namespace)
	q.Set("limit", strconv.Itoa(limit))
	if token != "" {
		q.Set("paginationToken", token)
	}
	out, err := doJSON[listResponse](ctx, s, "list", http.MethodGet, s.base+"/vectors/list?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	page := &storage.ListPage{IDs: make([]string, 0, len(out.Vectors))}
	for _, v := range out.Vectors {
		page.IDs = append(page.IDs, v.ID)
	}
	if out.Pagination != nil {
		page.NextToken = out.Pagination.Next
	}
	return page, nil
}

type fetchResponse struct {
	Vectors map[string]readVector `json:"vectors"`
}

// Fetch returns the stored vectors for ids, in the order requested.
func (s *Store) Fetch(ctx context.Context, namespace string, ids []string) ([]storage.Vector, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("namespace", namespace)
	for _, id := range ids {
		q.Add("ids", id)
	}
	out, err := doJSON[fetchResponse](ctx, s, "fetch", http.MethodGet, s.base+"/vectors/fetch?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	vectors := make([]storage.Vector, 0, len(out.Vectors))
	for _, id := range ids {
		v, ok := out.Vectors[id]
		if !ok {
			continue
		}
		vectors = append(vectors, storage.Vector{
			ID:       v.ID,
			Values:   v.Values,
			Metadata: stringifyMetadata(v.Metadata),
			Raw:      v.Metadata,
		})
	}
	return vectors, nil
}

type deleteRequest struct {
	DeleteAll bool   `json:"deleteAll"`
	Namespace string `json:"namespace"`
}

// DeleteAll removes every vector in a namespace.
func (s *Store) DeleteAll(ctx context.Context, namespace string) error {
	_, err := doJSON[struct{}](ctx, s, "delete", http.MethodPost, s.base+"/vectors/delete", deleteRequest{
		DeleteAll: true,
		Namespace: namespace,
	})
	return err
}

type statsResponse struct {
	Namespaces map[string]struct {
		VectorCount int `json:"vectorCount"`
	} `json:"namespaces"`
	Dimension        int `json:"dimension"`
	TotalVectorCount int `json:"totalVectorCount"`
}

// ListNamespaces returns vector counts per namespace from describe_index_stats.
func (s *Store) ListNamespaces(ctx context.Context) (map[string]int, error) {
	out, err := s.stats(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(out.Namespaces))
	for ns, st := range out.Namespaces {
		counts[ns] = st.VectorCount
	}
	return counts, nil
}

// Ping calls describe_index_stats.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.stats(ctx)
	return err
}

func (s *Store) stats(ctx context.Context) (*statsResponse, error) {
	return doJSON[statsResponse](ctx, s, "describe_index_stats", http.MethodPost, s.base+"/describe_index_stats", struct{}{})
}

// -------------------- helpers --------------------

func doJSON[T any](ctx context.Context, s *Store, op, method, u string, body any) (*T, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, retry.Permanent(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Api-Key", s.cfg.APIKey)
	req.Header.Set("X-Pinecone-Api-Version", s.cfg.APIVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinecone %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := &HTTPError{Op: op, Status: resp.StatusCode, Body: string(raw)}
		// Client errors other than rate limiting will not succeed on retry
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(httpErr)
		}
		return nil, httpErr
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("pinecone %s decode: %w", op, err)
	}
	return &out, nil
}

// wireMetadata restores native values from v.Raw for keys whose string
// form is unchanged. Keys missing from Metadata are dropped.
func wireMetadata(v storage.Vector) map[string]any {
	if len(v.Metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(v.Metadata))
	for k, str := range v.Metadata {
		if raw, ok := v.Raw[k]; ok && stringifyValue(raw) == str {
			out[k] = raw
			continue
		}
		out[k] = str
	}
	return out
}

func stringifyMetadata(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = stringifyValue(v)
	}
	return out
}

func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
