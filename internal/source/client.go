package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/orderdesk/sheetsync/internal/retry"
)

// Client fetches one page of records. Implementations perform no retries;
// the extractor owns the retry budget.
type Client interface {
	FetchPage(ctx context.Context, account Account, window Window, cursor string, pageSize int) (Page, error)
}

// HTTPClient calls the shop GraphQL endpoint over HTTP.
type HTTPClient struct {
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(httpClient *http.Client, logger *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{httpClient: httpClient, logger: logger}
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type ordersResponse struct {
	Data struct {
		Orders struct {
			Edges []struct {
				Node map[string]any `json:"node"`
			} `json:"edges"`
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
		} `json:"orders"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

func (c *HTTPClient) FetchPage(ctx context.Context, account Account, window Window, cursor string, pageSize int) (Page, error) {
	query := buildOrdersQuery(window, cursor, pageSize)
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return Page{}, err
	}
	endpoint := fmt.Sprintf("https://%s/admin/api/%s/graphql.json",
		strings.TrimSuffix(account.ShopURL, "/"), account.APIVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("X-Access-Token", account.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, ctx.Err()
		}
		return Page{}, fmt.Errorf("fetch page for %s: %w: %v", account.Key, retry.ErrTransient, err)
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return Page{}, fmt.Errorf("read page body for %s: %w: %v", account.Key, retry.ErrTransient, readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Page{}, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var parsed ordersResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Page{}, fmt.Errorf("decode page for %s: %w", account.Key, err)
	}
	if len(parsed.Errors) > 0 {
		first := parsed.Errors[0]
		return Page{}, &APIError{StatusCode: resp.StatusCode, Code: first.Extensions.Code, Message: first.Message}
	}

	page := Page{
		NextCursor: parsed.Data.Orders.PageInfo.EndCursor,
		HasMore:    parsed.Data.Orders.PageInfo.HasNextPage,
	}
	for _, edge := range parsed.Data.Orders.Edges {
		record, ok := c.recordFromNode(account, edge.Node)
		if !ok {
			continue
		}
		page.Records = append(page.Records, record)
	}
	return page, nil
}

// recordFromNode drops malformed nodes instead of failing the page; a record
// without a name has no usable natural key.
func (c *HTTPClient) recordFromNode(account Account, node map[string]any) (Record, bool) {
	if node == nil {
		c.logger.Warn("skipping empty order node", "account", account.Key)
		return Record{}, false
	}
	attrs := Attrs(node)
	name := attrs.Str("name")
	if name == "" {
		c.logger.Warn("skipping order without name", "account", account.Key, "id", attrs.Str("id"))
		return Record{}, false
	}
	return Record{
		Key:         name,
		CreatedAt:   attrs.Str("createdAt"),
		Account:     account.Key,
		AccountName: account.Name,
		Attrs:       attrs,
	}, true
}
