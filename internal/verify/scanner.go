package verify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
)

// ScanVerdict is the scanner's answer for one file.
type ScanVerdict struct {
	Clean  bool   `json:"clean"`
	Threat string `json:"threat,omitempty"`
}

// Scanner posts assembled files to an out-of-process scanning service and is
// treated as a black box: only its verdict matters here. Transient transport
// faults are retried by the underlying client.
type Scanner struct {
	httpClient *retryablehttp.Client
	baseURL    string
}

func NewScanner(baseURL string) *Scanner {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil

	return &Scanner{
		httpClient: client,
		baseURL:    baseURL,
	}
}

func (s *Scanner) Scan(ctx context.Context, path string) (*ScanVerdict, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file for scan: %w", err)
	}
	defer file.Close()

	// os.File is an io.ReadSeeker, so the client can rewind the body when a
	// retry fires.
	req, err := retryablehttp.NewRequest(http.MethodPost, fmt.Sprintf("%s/scan", s.baseURL), file)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("scanner returned HTTP %d: %s", resp.StatusCode, body)
	}

	verdict := &ScanVerdict{}
	if err := json.NewDecoder(resp.Body).Decode(verdict); err != nil {
		return nil, fmt.Errorf("decode scanner verdict: %w", err)
	}

	return verdict, nil
}
