package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Upstream names used for rate limiting, caching and metrics.
const (
	GoogleBooksUpstream = "googlebooks"
	OpenLibraryUpstream = "openlibrary"
	GeminiUpstream      = "gemini"
	CatalogUpstream     = "catalog"
)

// BookDetails are the metadata looked up by ISBN.
type BookDetails struct {
	Authors       string `json:"authors"`
	Publisher     string `json:"publisher"`
	PublishedDate string `json:"publishedDate"`
}

// Enricher completes a book with data from external providers.
type Enricher interface {
	Details(ctx context.Context, isbn string) (BookDetails, error)
	Languages(ctx context.Context, isbn string) []string
	Summary(ctx context.Context, title, authors string) (string, error)
}

var _ Enricher = (*EnrichmentGateway)(nil)

// RateLimiter wraps rate.Limiter with a name for logging.
type RateLimiter struct {
	limiter *rate.Limiter
	name    string
}

// NewRateLimiter allows requestsPerSecond calls per second with bursts of the same size.
func NewRateLimiter(name string, requestsPerSecond int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		name:    name,
	}
}

// Wait blocks until the limiter allows a call or the context is done.
func (l *RateLimiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// EnrichmentGateway queries Google Books, OpenLibrary and Gemini.
type EnrichmentGateway struct {
	logger   *zap.Logger
	config   *EnrichmentConfig
	client   *http.Client
	cache    EnrichmentCache
	metrics  *Metrics
	limiters map[string]*RateLimiter
}

// NewEnrichmentGateway provides a gateway. The cache and metrics may be nil.
func NewEnrichmentGateway(logger *zap.Logger, config *EnrichmentConfig, cache EnrichmentCache, metrics *Metrics) *EnrichmentGateway {
	return &EnrichmentGateway{
		logger:  logger,
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		cache:   cache,
		metrics: metrics,
		limiters: map[string]*RateLimiter{
			GoogleBooksUpstream: NewRateLimiter(GoogleBooksUpstream, config.RequestsPerSecond),
			OpenLibraryUpstream: NewRateLimiter(OpenLibraryUpstream, config.RequestsPerSecond),
			GeminiUpstream:      NewRateLimiter(GeminiUpstream, config.RequestsPerSecond),
		},
	}
}

// call sends the request after waiting for the upstream limiter and decodes a
// 200 json response into out. Any other outcome is an ErrUpstreamUnavailable.
func (eg *EnrichmentGateway) call(req *http.Request, upstream string, out interface{}) error {
	if err := eg.limiters[upstream].Wait(req.Context()); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	start := time.Now()
	resp, err := eg.client.Do(req)
	if err != nil {
		eg.metrics.ObserveUpstreamCall(upstream, "error", time.Since(start))
		return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, upstream, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		eg.metrics.ObserveUpstreamCall(upstream, "error", time.Since(start))
		return fmt.Errorf("%w: %s answered with status %d", ErrUpstreamUnavailable, upstream, resp.StatusCode)
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		eg.metrics.ObserveUpstreamCall(upstream, "error", time.Since(start))
		return fmt.Errorf("%w: %s: invalid response: %v", ErrUpstreamUnavailable, upstream, err)
	}
	eg.metrics.ObserveUpstreamCall(upstream, "success", time.Since(start))
	return nil
}

type googleBooksResponse struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Authors       []string `json:"authors"`
			Publisher     string   `json:"publisher"`
			PublishedDate string   `json:"publishedDate"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// Details looks up authors, publisher and publication date of the ISBN.
func (eg *EnrichmentGateway) Details(ctx context.Context, isbn string) (BookDetails, error) {
	return getOrFetch(ctx, eg.logger, eg.cache, GoogleBooksUpstream, isbn, func() (BookDetails, error) {
		var details BookDetails
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			eg.config.GoogleBooksURL+"?"+url.Values{"q": {"isbn:" + isbn}}.Encode(), nil)
		if err != nil {
			return details, err
		}
		var data googleBooksResponse
		if err = eg.call(req, GoogleBooksUpstream, &data); err != nil {
			return details, err
		}
		if data.TotalItems == 0 || len(data.Items) == 0 {
			return details, fmt.Errorf("%w: %s has no volume for isbn %s", ErrUpstreamUnavailable, GoogleBooksUpstream, isbn)
		}
		info := data.Items[0].VolumeInfo
		return BookDetails{
			Authors:       joinAuthors(info.Authors),
			Publisher:     orMissing(info.Publisher),
			PublishedDate: normalizePublishedDate(info.PublishedDate),
		}, nil
	})
}

func joinAuthors(authors []string) string {
	if len(authors) == 0 {
		return MissingValue
	}
	return strings.Join(authors, " and ")
}

func orMissing(s string) string {
	if s == "" {
		return MissingValue
	}
	return s
}

// normalizePublishedDate keeps a year (YYYY) or a full date (YYYY-MM-DD).
func normalizePublishedDate(s string) string {
	if len(s) == 4 || len(s) == 10 {
		return s
	}
	return MissingValue
}

type openLibraryResponse struct {
	Docs []struct {
		Language []string `json:"language"`
	} `json:"docs"`
}

// Languages returns the language codes known for the ISBN, or ["missing"].
func (eg *EnrichmentGateway) Languages(ctx context.Context, isbn string) []string {
	languages, err := getOrFetch(ctx, eg.logger, eg.cache, OpenLibraryUpstream, isbn, func() ([]string, error) {
		q := url.Values{"q": {isbn}, "fields": {"key,title,author_name,language"}}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, eg.config.OpenLibraryURL+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var data openLibraryResponse
		if err = eg.call(req, OpenLibraryUpstream, &data); err != nil {
			return nil, err
		}
		if len(data.Docs) == 0 || len(data.Docs[0].Language) == 0 {
			return nil, fmt.Errorf("%s has no language for isbn %s", OpenLibraryUpstream, isbn)
		}
		return data.Docs[0].Language, nil
	})
	if err != nil {
		eg.logger.Warn("enrichment: language lookup failed", zap.String("book.isbn", isbn), zap.Error(err))
		return []string{MissingValue}
	}
	return languages
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Summary asks Gemini for a short summary of the book. Without an api key
// the summary is reported as missing.
func (eg *EnrichmentGateway) Summary(ctx context.Context, title, authors string) (string, error) {
	if eg.config.GeminiAPIKey == "" {
		return MissingValue, nil
	}
	prompt := fmt.Sprintf("Summarize the book %s by %s in 5 sentences or less.", title, authors)
	return getOrFetch(ctx, eg.logger, eg.cache, GeminiUpstream, title+"|"+authors, func() (string, error) {
		body, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}}})
		if err != nil {
			return "", err
		}
		endpoint := fmt.Sprintf("%s/%s:generateContent?%s",
			strings.TrimRight(eg.config.GeminiURL, "/"), eg.config.GeminiModel, url.Values{"key": {eg.config.GeminiAPIKey}}.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		var data geminiResponse
		if err = eg.call(req, GeminiUpstream, &data); err != nil {
			return "", err
		}
		var sb strings.Builder
		for _, c := range data.Candidates {
			for _, p := range c.Content.Parts {
				sb.WriteString(p.Text)
			}
			if sb.Len() > 0 {
				break
			}
		}
		if sb.Len() == 0 {
			return "", fmt.Errorf("%w: %s returned no summary", ErrUpstreamUnavailable, GeminiUpstream)
		}
		return sb.String(), nil
	})
}
