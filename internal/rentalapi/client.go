// Package rentalapi is an HTTP client for the rentals backend: rental and
// room lookups, daily prices, M-Pesa STK push initiation and payment listing.
package rentalapi

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

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Client calls the rentals backend REST API.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client

	redis    *redis.Client
	cacheTTL time.Duration
	limiter  *rate.Limiter

	now func() time.Time
}

// NewClient constructs a client for the given base URL. An empty authToken
// disables the Authorization header.
func NewClient(baseURL, authToken string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseRateLimit applies a client-side request rate limit.
func (c *Client) UseRateLimit(rps float64, burst int) {
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// APIError carries the backend's own error detail so callers can show it
// verbatim. Detail is the first non-empty of error/message/safaricom_response
// in the response body.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// FetchRental fetches the rental descriptor by slug.
func (c *Client) FetchRental(ctx context.Context, slug string) (*Rental, error) {
	endpoint := fmt.Sprintf("%s/rentals/%s/", c.baseURL, url.PathEscape(slug))
	cacheKey := "rental:" + slug
	var rental Rental

	if c.readCache(ctx, cacheKey, &rental) {
		return &rental, nil
	}

	if err := c.doGet(ctx, endpoint, &rental); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, rental)
	return &rental, nil
}

// FetchAvailableRooms fetches rooms for a rental and stay range with pricing.
// Dates are YYYY-MM-DD.
func (c *Client) FetchAvailableRooms(ctx context.Context, slug, checkin, checkout string) ([]Room, error) {
	q := url.Values{}
	q.Set("checkin", checkin)
	q.Set("checkout", checkout)
	c.bustCache(q)
	endpoint := fmt.Sprintf("%s/rentals/%s/rooms/?%s", c.baseURL, url.PathEscape(slug), q.Encode())

	var rooms []Room
	if err := c.doGet(ctx, endpoint, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// FetchDailyPrices fetches per-night prices for a room and date range.
func (c *Client) FetchDailyPrices(ctx context.Context, roomID int64, startDate, endDate string) ([]DailyPrice, error) {
	q := url.Values{}
	q.Set("room_id", strconv.FormatInt(roomID, 10))
	q.Set("start_date", startDate)
	q.Set("end_date", endDate)
	c.bustCache(q)
	endpoint := fmt.Sprintf("%s/daily-prices/?%s", c.baseURL, q.Encode())

	var prices []DailyPrice
	if err := c.doGet(ctx, endpoint, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// InitiateSTKPush submits an M-Pesa STK push request to the payment gateway.
func (c *Client) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	endpoint := fmt.Sprintf("%s/mpesa/stkpush/", c.baseURL)
	var resp STKPushResponse
	if err := c.doPost(ctx, endpoint, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// FetchPayments lists payments, optionally filtered by user id.
func (c *Client) FetchPayments(ctx context.Context, userID string) ([]Payment, error) {
	endpoint := fmt.Sprintf("%s/payments/", c.baseURL)
	if userID != "" {
		endpoint += "?user_id=" + url.QueryEscape(userID)
	}
	var payments []Payment
	if err := c.doGet(ctx, endpoint, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

// bustCache appends a cache-busting param when no redis cache is configured,
// so intermediate proxies never serve stale rooms or prices.
func (c *Client) bustCache(q url.Values) {
	if c.redis == nil || c.cacheTTL <= 0 {
		q.Set("cb", strconv.FormatInt(c.now().UnixMilli(), 10))
	}
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return c.apiError(resp)
	}
	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	return dec.Decode(out)
}

func (c *Client) apiError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apiErr
	}
	var detail struct {
		Error             string `json:"error"`
		Message           string `json:"message"`
		SafaricomResponse string `json:"safaricom_response"`
	}
	if err := json.Unmarshal(body, &detail); err == nil {
		switch {
		case detail.Error != "":
			apiErr.Detail = detail.Error
		case detail.Message != "":
			apiErr.Detail = detail.Message
		case detail.SafaricomResponse != "":
			apiErr.Detail = detail.SafaricomResponse
		}
	}
	return apiErr
}

func (c *Client) addHeaders(req *http.Request) {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}
