// Package reset implements the remote data-reset collaborators invoked
// between test attempts.
package reset

import (
	"context"
	"fmt"
	"net/http"

	"flakeguard/internal/platform/httpclient"
	"flakeguard/internal/shared"
)

// HTTP calls an idempotent reset endpoint with an empty POST body.
type HTTP struct {
	client *httpclient.Client
	url    string
}

// NewHTTP creates a resetter for the given endpoint.
func NewHTTP(client *httpclient.Client, url string) *HTTP {
	return &HTTP{client: client, url: url}
}

// Reset performs the POST. Any non-2xx status is an error; the run loop
// treats it as best-effort and keeps going.
func (h *HTTP) Reset(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodPost, h.url, nil)
	if err != nil {
		return shared.Mark(err, shared.ErrReset)
	}

	resp, err := h.client.Do(ctx, req)
	if err != nil {
		return shared.Mark(shared.Wrap(err, "reset request"), shared.ErrReset)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return shared.Mark(fmt.Errorf("reset endpoint returned %s", resp.Status), shared.ErrReset)
	}
	return nil
}
