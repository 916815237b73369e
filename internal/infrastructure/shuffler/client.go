// Package shuffler implements the HTTP client ShippingManager uses to
// upload sealed envelopes upstream (spec.md §4.5 — the shuffler is an
// external collaborator this core does not implement, only calls).
// Built the way this repo's other infrastructure adapters are: a stdlib
// net/http.Client wrapped behind a narrow interface.
package shuffler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"cobalt/pkg/cobalterr"
)

// Uploader is the narrow interface ShippingManager depends on, so tests can
// substitute a fake instead of standing up an HTTP server.
type Uploader interface {
	Upload(ctx context.Context, sealedEnvelope []byte) error
}

// Client posts sealed envelopes to the shuffler's ingestion endpoint.
type Client struct {
	httpClient *http.Client
	endpoint   string
}

// New builds a Client posting to endpoint, with timeout bounding each
// individual HTTP call (independent of ShippingManager's own retry/backoff
// loop, which issues one Upload call per attempt).
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
	}
}

// Upload sends sealedEnvelope as the request body. The response status is
// classified into the cobalterr taxonomy so ShippingManager's backoff loop
// can tell retryable failures (WriteFailed) from terminal ones
// (InvalidArguments) per spec.md §4.5.
func (c *Client) Upload(ctx context.Context, sealedEnvelope []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(sealedEnvelope))
	if err != nil {
		return cobalterr.NewOther("failed to build upload request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return cobalterr.NewWriteFailed("upload request failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		return cobalterr.NewInvalidArguments("shuffler rejected envelope as malformed")
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return cobalterr.NewObservationTooBig("shuffler rejected envelope as too large")
	default:
		return cobalterr.NewWriteFailed("shuffler returned a retryable error status", httpStatusError(resp.StatusCode))
	}
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return http.StatusText(int(e))
}
