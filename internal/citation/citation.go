// Package citation looks up how often the published paper has been cited,
// using a Crossref-compatible works endpoint. The lookup is strictly
// optional: a failure only drops the citation line from the report.
package citation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/pointcount/avifauna/internal/errors"
	"github.com/pointcount/avifauna/internal/logging"
)

const (
	// DefaultEndpoint is the public Crossref works API.
	DefaultEndpoint = "https://api.crossref.org/works"

	userAgent      = "avifauna/1.0 (mailto:maintainers@pointcount.org)"
	requestTimeout = 10 * time.Second
	maxRetries     = 3
	retryDelay     = 2 * time.Second
)

// worksResponse is the slice of the Crossref works payload we care about.
type worksResponse struct {
	Message struct {
		DOI               string `json:"DOI"`
		ReferencedByCount int    `json:"is-referenced-by-count"`
	} `json:"message"`
}

// Client fetches citation counts with an in-memory TTL cache in front of
// the endpoint, so repeated report renders within one process do not
// re-query Crossref.
type Client struct {
	endpoint   string
	httpClient *http.Client
	cache      *cache.Cache
}

// New returns a Client for the given works endpoint. Counts are cached
// for ttl; an expired entry is refetched on next use.
func New(endpoint string, ttl time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      cache.New(ttl, 2*ttl),
	}
}

// ReferencedByCount returns the is-referenced-by-count of the work with
// the given DOI.
func (c *Client) ReferencedByCount(ctx context.Context, doi string) (int, error) {
	if doi == "" {
		return 0, errors.Newf("no DOI given").
			Component("citation").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if count, found := c.cache.Get(doi); found {
		return count.(int), nil
	}

	logger := logging.ForService("citation").With("doi", doi)
	apiURL := c.endpoint + "/" + url.PathEscape(doi)

	body, err := c.fetchWithRetry(ctx, apiURL, logger)
	if err != nil {
		return 0, err
	}

	var resp worksResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, errors.New(err).
			Component("citation").
			Category(errors.CategoryFileParsing).
			Context("operation", "unmarshal_works_response").
			Build()
	}

	count := resp.Message.ReferencedByCount
	if count < 0 {
		return 0, errors.Newf("endpoint returned negative citation count %d", count).
			Component("citation").
			Category(errors.CategoryDataIntegrity).
			Build()
	}

	c.cache.SetDefault(doi, count)
	logger.Info("citation count fetched", "count", count)
	return count, nil
}

func (c *Client) fetchWithRetry(ctx context.Context, apiURL string, logger *slog.Logger) ([]byte, error) {
	var lastErr error
	for i := range maxRetries {
		isLastAttempt := i == maxRetries-1

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
		if err != nil {
			return nil, errors.New(err).
				Component("citation").
				Category(errors.CategoryNetwork).
				Context("operation", "create_http_request").
				Build()
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("citation request failed", "attempt", i+1, "error", err)
			lastErr = err
			if !isLastAttempt {
				time.Sleep(retryDelay)
			}
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, errors.Newf("work not found at endpoint").
				Component("citation").
				Category(errors.CategoryNotFound).
				Build()
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			logger.Warn("citation request returned non-OK status", "attempt", i+1, "status_code", resp.StatusCode)
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			if !isLastAttempt {
				time.Sleep(retryDelay)
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, errors.New(err).
				Component("citation").
				Category(errors.CategoryNetwork).
				Context("operation", "read_response_body").
				Build()
		}
		return body, nil
	}

	return nil, errors.New(fmt.Errorf("citation lookup failed after %d attempts: %w", maxRetries, lastErr)).
		Component("citation").
		Category(errors.CategoryNetwork).
		Context("operation", "citation_api_request").
		Build()
}
