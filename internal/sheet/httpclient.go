package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orderdesk/sheetsync/internal/retry"
)

// HTTPTableClient implements TableClient against the table service's REST
// API. One sub-table per logical dataset, addressed by an opaque table ID.
type HTTPTableClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPTableClient(baseURL, token string, httpClient *http.Client) *HTTPTableClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTableClient{
		baseURL:    baseURL,
		token:      strings.TrimSpace(token),
		httpClient: httpClient,
	}
}

type tableInfo struct {
	RowCount int `json:"rowCount"`
	GridRows int `json:"gridRows"`
}

func (c *HTTPTableClient) GetHeader(ctx context.Context, tableID string) ([]string, error) {
	rows, err := c.GetRows(ctx, tableID, RowRange{Start: 1, End: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (c *HTTPTableClient) GetRows(ctx context.Context, tableID string, rng RowRange) ([][]string, error) {
	q := url.Values{}
	if !rng.IsAll() {
		q.Set("start", strconv.Itoa(rng.Start))
		q.Set("end", strconv.Itoa(rng.End))
	}
	var out struct {
		Rows [][]string `json:"rows"`
	}
	path := fmt.Sprintf("/v1/tables/%s/rows?%s", url.PathEscape(tableID), q.Encode())
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Rows, nil
}

func (c *HTTPTableClient) RowCount(ctx context.Context, tableID string) (int, error) {
	info, err := c.getInfo(ctx, tableID)
	if err != nil {
		return 0, err
	}
	return info.RowCount, nil
}

func (c *HTTPTableClient) Capacity(ctx context.Context, tableID string) (int, error) {
	info, err := c.getInfo(ctx, tableID)
	if err != nil {
		return 0, err
	}
	return info.GridRows, nil
}

func (c *HTTPTableClient) getInfo(ctx context.Context, tableID string) (tableInfo, error) {
	var info tableInfo
	path := fmt.Sprintf("/v1/tables/%s", url.PathEscape(tableID))
	err := c.doJSON(ctx, http.MethodGet, path, nil, &info)
	return info, err
}

func (c *HTTPTableClient) AppendRows(ctx context.Context, tableID string, startRow int, rows [][]string) error {
	body := map[string]any{"startRow": startRow, "rows": rows}
	path := fmt.Sprintf("/v1/tables/%s/rows:append", url.PathEscape(tableID))
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *HTTPTableClient) UpdateRows(ctx context.Context, tableID string, updates map[int][]string) error {
	encoded := make(map[string][]string, len(updates))
	for rowNum, row := range updates {
		encoded[strconv.Itoa(rowNum)] = row
	}
	body := map[string]any{"updates": encoded}
	path := fmt.Sprintf("/v1/tables/%s/rows:update", url.PathEscape(tableID))
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *HTTPTableClient) GrowCapacity(ctx context.Context, tableID string, newRowCount int) error {
	body := map[string]any{"rowCount": newRowCount}
	path := fmt.Sprintf("/v1/tables/%s:grow", url.PathEscape(tableID))
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *HTTPTableClient) ApplyColumnFormat(ctx context.Context, tableID string, rng RowRange, column int, kind FormatKind) error {
	body := map[string]any{
		"startRow": rng.Start,
		"endRow":   rng.End,
		"column":   column,
		"kind":     string(kind),
	}
	path := fmt.Sprintf("/v1/tables/%s/format", url.PathEscape(tableID))
	return c.doJSON(ctx, http.MethodPost, path, body, nil)
}

func (c *HTTPTableClient) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("table request %s: %w: %v", requestPath, retry.ErrTransient, err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return readErr
	}
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		return json.Unmarshal(payload, out)
	}

	var errPayload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(payload, &errPayload)
	if errPayload.Message == "" {
		errPayload.Message = strings.TrimSpace(string(payload))
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       errPayload.Code,
		Message:    errPayload.Message,
	}
}
