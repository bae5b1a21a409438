// Package remote implements taste.Engine against an HTTP scoring service.
//
// The service answers GET {base}/items/{id}/similar?count=N with
//
//	{"item_id": 1, "items": [{"item_id": 7, "value": 0.93}, ...]}
//
// where items are already in rank order.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	taste "github.com/eugener/tasteworker/internal"
)

const maxResponseBytes = 8 << 20

// APIError is a non-2xx response from the scoring service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote engine: HTTP %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

func parseAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", taste.ErrItemNotFound, apiErr)
	}
	return apiErr
}

// Client calls the scoring service. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL. rt carries pooling and authentication;
// nil uses http.DefaultTransport. A positive timeout bounds each call.
func New(baseURL string, rt http.RoundTripper, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: rt, Timeout: timeout},
	}
}

// MostSimilarItems implements taste.Engine.
func (c *Client) MostSimilarItems(ctx context.Context, itemID int64, howMany int) ([]taste.RecommendedItem, error) {
	url := c.baseURL + "/items/" + strconv.FormatInt(itemID, 10) + "/similar?count=" + strconv.Itoa(howMany)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote engine: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote engine: do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("remote engine: read response: %w", err)
	}
	return parseItems(body, itemID, howMany)
}

var errMalformed = errors.New("remote engine: malformed response")

func parseItems(body []byte, itemID int64, howMany int) ([]taste.RecommendedItem, error) {
	if !gjson.ValidBytes(body) {
		return nil, errMalformed
	}
	list := gjson.GetBytes(body, "items")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: missing items array", errMalformed)
	}
	if howMany <= 0 {
		return nil, nil
	}

	out := make([]taste.RecommendedItem, 0, min(howMany, int(list.Get("#").Int())))
	var perr error
	list.ForEach(func(_, v gjson.Result) bool {
		id, value := v.Get("item_id"), v.Get("value")
		if id.Type != gjson.Number || value.Type != gjson.Number {
			perr = fmt.Errorf("%w: bad entry %s", errMalformed, v.Raw)
			return false
		}
		if id.Int() == itemID {
			return true
		}
		out = append(out, taste.RecommendedItem{ItemID: id.Int(), Value: value.Float()})
		return len(out) < howMany
	})
	if perr != nil {
		return nil, perr
	}
	return out, nil
}
