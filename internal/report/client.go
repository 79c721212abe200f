// Package report delivers the active window to an ActivityWatch compatible
// server as heartbeats on a current-window bucket.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/FocusWatcher/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

const (
	clientName = "focuswatcher"
	bucketType = "currentwindow"
)

// Config holds the report server settings
type Config struct {
	ServerURL string
	BucketID  string
	Hostname  string
	PulseTime time.Duration
	RetryMax  int
}

// Client implements focus.Sink over HTTP
type Client struct {
	baseURL   string
	bucketID  string
	hostname  string
	pulseTime time.Duration
	http      *retryablehttp.Client
	log       *zerolog.Logger
}

type bucket struct {
	Client   string `json:"client"`
	Type     string `json:"type"`
	Hostname string `json:"hostname"`
}

type heartbeat struct {
	Timestamp time.Time  `json:"timestamp"`
	Duration  float64    `json:"duration"`
	Data      windowData `json:"data"`
}

type windowData struct {
	App   string `json:"app"`
	Title string `json:"title"`
}

// NewClient creates a report client. An empty bucket id defaults to
// "aw-watcher-window_<hostname>".
func NewClient(cfg Config) *Client {
	hostname := cfg.Hostname
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		} else {
			hostname = "unknown"
		}
	}

	bucketID := cfg.BucketID
	if bucketID == "" {
		bucketID = "aw-watcher-window_" + hostname
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.ServerURL, "/"),
		bucketID:  bucketID,
		hostname:  hostname,
		pulseTime: cfg.PulseTime,
		http:      newRetryClient(cfg.RetryMax),
		log:       logger.WithComponent("report-client"),
	}
}

func newRetryClient(retryMax int) *retryablehttp.Client {
	log := logger.WithComponent("report-client")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 50 * time.Millisecond
	retryClient.RetryWaitMax = 200 * time.Millisecond
	retryClient.Logger = nil
	retryClient.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		log.Trace().
			Str(req.Method, req.URL.String()).
			Int("attempt", attempt).
			Msg("")
	}
	retryClient.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if resp == nil {
			return true, err
		}
		// client errors will not get better on retry
		return resp.StatusCode >= 500, nil
	}
	return retryClient
}

// BucketID returns the bucket heartbeats are written to
func (c *Client) BucketID() string {
	return c.bucketID
}

// EnsureBucket creates the bucket if the server does not have it yet.
func (c *Client) EnsureBucket(ctx context.Context) error {
	body, err := json.Marshal(bucket{
		Client:   clientName,
		Type:     bucketType,
		Hostname: c.hostname,
	})
	if err != nil {
		return fmt.Errorf("failed to encode bucket: %w", err)
	}

	resp, err := c.post(ctx, c.bucketURL(), body)
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucketID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		c.log.Debug().Str("bucket", c.bucketID).Msg("Bucket already exists")
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.log.Info().Str("bucket", c.bucketID).Msg("Bucket created")
		return nil
	default:
		return statusError(resp)
	}
}

// SendActiveWindow posts a zero-duration heartbeat for the window. The server
// merges consecutive equal heartbeats that arrive within the pulse time.
func (c *Client) SendActiveWindow(ctx context.Context, appID, title string) error {
	body, err := json.Marshal(heartbeat{
		Timestamp: time.Now().UTC(),
		Data:      windowData{App: appID, Title: title},
	})
	if err != nil {
		return fmt.Errorf("failed to encode heartbeat: %w", err)
	}

	endpoint := c.bucketURL() + "/heartbeat?pulsetime=" +
		strconv.FormatFloat(c.pulseTime.Seconds(), 'f', -1, 64)

	resp, err := c.post(ctx, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp)
	}
	return nil
}

func (c *Client) bucketURL() string {
	return c.baseURL + "/api/0/buckets/" + url.PathEscape(c.bucketID)
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("report server returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}
