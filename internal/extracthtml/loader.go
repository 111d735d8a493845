package extracthtml

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cuiregistry/internal/metrics"
)

// DefaultUserAgent is sent when Loader.UserAgent is empty.
const DefaultUserAgent = "cui-harvest/1.0"

// Input describes where HTML should come from.
type Input struct {
	// URL, if provided, is fetched via HTTP GET.
	URL string

	// Stdin is used when URL is empty. If nil, stdin reads as empty.
	Stdin io.Reader
}

// Loader fetches or reads HTML with a consistent timeout policy.
type Loader struct {
	client  *http.Client
	timeout time.Duration

	// UserAgent overrides DefaultUserAgent.
	UserAgent string
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
func NewLoader(client *http.Client, timeout time.Duration) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{
		client:  client,
		timeout: timeout,
	}
}

// Load returns the HTML source for either stdin (when input.URL is empty)
// or a fetched URL.
//
// On non-2xx HTTP responses, Load returns an error that includes the status
// code and up to 4KB of the response body for debugging.
func (l *Loader) Load(ctx context.Context, input Input) (string, error) {
	if strings.TrimSpace(input.URL) == "" {
		if input.Stdin == nil {
			return "", nil
		}
		b, err := io.ReadAll(input.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	}

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	ua := l.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	start := time.Now()
	resp, err := l.client.Do(req)
	if err != nil {
		observeHTTP("error", start, 0)
		return "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	status := strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		observeHTTP(status, start, len(body))
		return "", fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	b, err := io.ReadAll(resp.Body)
	observeHTTP(status, start, len(b))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(b), nil
}

func observeHTTP(status string, start time.Time, n int) {
	l := metrics.Labels{"status": status}
	metrics.IncCounter(metrics.HTTPRequestsTotal, 1, l)
	if status == "error" || !strings.HasPrefix(status, "2") {
		metrics.IncCounter(metrics.HTTPErrorsTotal, 1, l)
	}
	metrics.ObserveHistogram(metrics.HTTPRequestDuration, time.Since(start).Seconds(), l)
	metrics.ObserveHistogram(metrics.HTTPDownloadBytes, float64(n), l)
}
