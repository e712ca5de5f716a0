package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"newspulse-bot/internal/domain"
	"newspulse-bot/internal/infra/metrics"
)

const defaultBaseURL = "https://newsapi.org/v2"

const removedMarker = "[Removed]"

// Client получает главные новости по категориям из NewsAPI.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	country  string
	pageSize int
}

// NewClient создаёт клиента NewsAPI.
func NewClient(apiKey, baseURL, country string, pageSize int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		apiKey:   apiKey,
		country:  country,
		pageSize: pageSize,
	}
}

type topHeadlinesResponse struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []article `json:"articles"`
}

type article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// FetchCategory вызывает /top-headlines для категории.
func (c *Client) FetchCategory(ctx context.Context, category string) (items []domain.NewsItem, err error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("newsapi: api key is empty")
	}
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("newsapi", "top_headlines", category, start, err) }()

	q := url.Values{}
	q.Set("category", category)
	if c.country != "" {
		q.Set("country", c.country)
	}
	q.Set("pageSize", strconv.Itoa(c.pageSize))
	endpoint := c.baseURL + "/top-headlines?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi: build request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("newsapi: read response: %w", err)
	}
	var payload topHeadlinesResponse
	decodeErr := json.Unmarshal(body, &payload)
	if resp.StatusCode >= 400 || payload.Status == "error" {
		if decodeErr == nil && payload.Message != "" {
			return nil, fmt.Errorf("newsapi: %s: %s", payload.Code, payload.Message)
		}
		return nil, fmt.Errorf("newsapi: unexpected status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("newsapi: decode response: %w", decodeErr)
	}
	return toItems(payload.Articles), nil
}

func toItems(articles []article) []domain.NewsItem {
	items := make([]domain.NewsItem, 0, len(articles))
	for _, a := range articles {
		title := strings.TrimSpace(a.Title)
		summary := strings.TrimSpace(a.Description)
		if title == removedMarker || summary == removedMarker {
			continue
		}
		if summary == "" {
			summary = title
		}
		if summary == "" {
			continue
		}
		items = append(items, domain.NewsItem{
			Title:       title,
			SummaryText: summary,
			SourceURL:   strings.TrimSpace(a.URL),
		})
	}
	return items
}
