package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"ragchat/internal/domain"
	"ragchat/internal/logger"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and owns its collection: Init recreates it and Clear drops it.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *retryablehttp.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
	RetryMax   int
}

// point ids must be UUIDs or integers
var pointNamespace = uuid.MustParse("6f1c9d56-3a57-4a8e-9a53-1b0c2f7e4d10")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	retryMax := cfg.RetryMax
	if retryMax == 0 {
		retryMax = 3
	}
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = timeout
	client.Logger = logger.NewLeveledLogrus(logger.GetLogger())
	client.Backoff = retryablehttp.DefaultBackoff
	client.CheckRetry = retryPolicy
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     client,
	}
}

// retryPolicy does not retry cancelled requests or client errors.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// Collection returns the name of the collection backing this storage.
func (s *Storage) Collection() string { return s.collection }

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.dimension = dimension
	if err := s.Clear(ctx); err != nil {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	return s.do(ctx, http.MethodPut, s.collectionURL(), body, nil)
}

func (s *Storage) Upsert(ctx context.Context, segments []domain.Segment, vectors [][]float64) error {
	if len(segments) != len(vectors) {
		return errors.New("segments and vectors length mismatch")
	}
	points := make([]map[string]any, len(segments))
	for i, seg := range segments {
		if len(vectors[i]) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
		points[i] = map[string]any{
			"id":     uuid.NewSHA1(pointNamespace, []byte(seg.SegmentID)).String(),
			"vector": vectors[i],
			"payload": map[string]any{
				"document_id": seg.DocumentID,
				"segment_id":  seg.SegmentID,
				"source":      seg.Source,
				"page":        seg.Page,
				"index":       seg.Index,
				"text":        seg.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil)
}

type searchResponse struct {
	Result []struct {
		Score   float64 `json:"score"`
		Payload struct {
			DocumentID string `json:"document_id"`
			SegmentID  string `json:"segment_id"`
			Source     string `json:"source"`
			Page       int    `json:"page"`
			Index      int    `json:"index"`
			Text       string `json:"text"`
		} `json:"payload"`
	} `json:"result"`
}

// searchSlack extra points are fetched so that ties at the topK boundary can
// be settled by segment order.
const searchSlack = 8

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK + searchSlack,
		"with_payload": true,
	}
	var resp searchResponse
	if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		p := r.Payload
		results = append(results, domain.SearchResult{
			Segment: domain.Segment{
				DocumentID: p.DocumentID,
				SegmentID:  p.SegmentID,
				Source:     p.Source,
				Page:       p.Page,
				Index:      p.Index,
				Text:       p.Text,
			},
			Score: r.Score,
		})
	}
	// qdrant does not order ties
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Segment.Index < results[j].Segment.Index
	})
	return results[:min(topK, len(results))], nil
}

// Clear drops the collection. A missing collection is not an error.
func (s *Storage) Clear(ctx context.Context) error {
	err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusNotFound {
		return nil
	}
	return err
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

type statusError struct {
	method string
	url    string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.url, e.code, e.body)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{method: method, url: url, code: resp.StatusCode, body: string(bytes.TrimSpace(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
