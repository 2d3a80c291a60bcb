// Package newsfeed fetches articles from the external news-feed service.
package newsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"stockpulse-backend/internal/service"
	appErrors "stockpulse-backend/pkg/errors"

	"go.uber.org/zap"
)

const defaultTimeout = 10 * time.Second

// Client is an HTTP article source. It satisfies service.ArticleSource.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a news-feed client for the given base URL.
func NewClient(endpoint string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.Named("newsfeed_client"),
	}
}

type wireArticle struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Fetch lists the articles published for a subject within the date range.
// An unconfigured endpoint yields an empty list rather than an error so
// batch jobs degrade to no-ops in environments without a feed.
func (c *Client) Fetch(ctx context.Context, subject, startDate, endDate string) ([]service.Article, error) {
	if c.endpoint == "" {
		c.logger.Warn("news endpoint not configured, returning no articles")
		return nil, nil
	}

	query := url.Values{}
	query.Set("subject", subject)
	query.Set("start", startDate)
	query.Set("end", endDate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/news?"+query.Encode(), nil)
	if err != nil {
		return nil, appErrors.NewInternal("building news request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, appErrors.NewUnavailable("news feed unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, appErrors.NewUnavailable(fmt.Sprintf("news feed returned %d", resp.StatusCode), nil)
	}

	var wire []wireArticle
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, appErrors.NewUnavailable("malformed news feed response", err)
	}

	articles := make([]service.Article, 0, len(wire))
	for _, a := range wire {
		articles = append(articles, service.Article{Title: a.Title, Body: a.Body})
	}
	c.logger.Debug("fetched articles",
		zap.String("subject", subject),
		zap.Int("count", len(articles)))
	return articles, nil
}
