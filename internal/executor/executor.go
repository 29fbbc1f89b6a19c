package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dripfeed/internal/config"
	"dripfeed/internal/logging"
	"dripfeed/internal/queue"
)

const maxResponseBytes = 4096

// Client sends steps to one endpoint. It is safe for concurrent use.
type Client struct {
	endpoint  string
	method    string
	userAgent string
	http      *http.Client
	logger    *slog.Logger
	now       func() time.Time
}

// New builds a Client from the executor settings. httpClient may be nil, in
// which case a dedicated client is created; per-call deadlines come from ctx.
func New(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := &Client{
		http:   httpClient,
		logger: logging.NewComponentLogger(logger, "executor"),
		now:    time.Now,
		method: http.MethodPost,
	}
	if cfg != nil {
		c.endpoint = strings.TrimSpace(cfg.Executor.Endpoint)
		c.userAgent = cfg.Executor.UserAgent
		if m := strings.ToUpper(strings.TrimSpace(cfg.Executor.Method)); m == http.MethodGet {
			c.method = m
		}
	}
	if c.userAgent == "" {
		c.userAgent = "dripfeed"
	}
	return c
}

// Configured reports whether an endpoint is set.
func (c *Client) Configured() bool {
	return c != nil && c.endpoint != ""
}

// Execute sends one step for target. The event token is the step payload.
func (c *Client) Execute(ctx context.Context, target queue.Target, payload string) (int, string) {
	if !c.Configured() {
		return 0, "executor endpoint not configured"
	}

	params := url.Values{}
	params.Set("app_name", target.AppName)
	params.Set("app_token", target.Credential)
	params.Set("event_token", payload)
	if target.Platform != "" {
		params.Set("platform", target.Platform)
	}
	if target.DeviceID != "" {
		params.Set("device_id", target.DeviceID)
	}
	params.Set("created_at", strconv.FormatInt(c.now().Unix(), 10))

	method := c.method
	if target.UseGet {
		method = http.MethodGet
	}

	req, err := c.buildRequest(ctx, method, params)
	if err != nil {
		return 0, err.Error()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, "request timed out"
		}
		return 0, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	_, _ = io.Copy(io.Discard, resp.Body)
	text := strings.TrimSpace(string(body))
	if readErr != nil && text == "" {
		text = fmt.Sprintf("read response: %v", readErr)
	}
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}

	c.logger.Debug("step delivered",
		logging.String("app", target.AppName),
		logging.String("method", method),
		logging.Int("status", resp.StatusCode),
	)
	return resp.StatusCode, text
}

func (c *Client) buildRequest(ctx context.Context, method string, params url.Values) (*http.Request, error) {
	var (
		req *http.Request
		err error
	)
	if method == http.MethodGet {
		target, parseErr := url.Parse(c.endpoint)
		if parseErr != nil {
			return nil, fmt.Errorf("parse endpoint: %w", parseErr)
		}
		query := target.Query()
		for key, values := range params {
			for _, v := range values {
				query.Add(key, v)
			}
		}
		target.RawQuery = query.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	return req, nil
}
