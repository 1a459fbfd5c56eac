package util

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"
)

// Realistic browser user agents. The GDELT mirrors are static file servers but
// some intermediaries throttle obviously scripted clients.
var commonUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36",
}

// maxTextBody caps how much of a small text resource (header files, index pages) is read.
const maxTextBody = 16 << 20

// GetRandomUserAgent returns one of the common user agents.
func GetRandomUserAgent() string {
	if len(commonUserAgents) == 0 {
		return "GDELTHelper/1.0 (Go-client)"
	}
	return commonUserAgents[rand.Intn(len(commonUserAgents))]
}

// DecorateRequest sets the headers every outbound request carries.
func DecorateRequest(req *http.Request) {
	req.Header.Set("User-Agent", GetRandomUserAgent())
	req.Header.Set("Accept", "*/*")
}

// DownloadFile executes a pre-built HTTP request and returns the body bytes.
// It handles response closing and non-200 status codes.
// Only for small resources: the body is capped at 16 MiB.
func DownloadFile(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do request for %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		limitReader := io.LimitReader(resp.Body, 512)
		bodyBytes, _ := io.ReadAll(limitReader)
		return nil, fmt.Errorf("bad status '%s' fetching %s: %s", resp.Status, req.URL.String(), string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxTextBody))
	if err != nil {
		return nil, fmt.Errorf("failed reading body from %s: %w", req.URL.String(), err)
	}
	return bodyBytes, nil
}

// DefaultHTTPClient creates an http.Client with the given timeout, falling
// back to 30 seconds when timeout is not positive.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
