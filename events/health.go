package events

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

const healthPollInterval = 250 * time.Millisecond

// WaitReady polls the server's health endpoint until it answers 200 or ctx
// expires. Streams must not be attached to a server that is still booting.
func WaitReady(ctx context.Context, httpClient *http.Client, baseURL string) error {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Second}
	}
	healthURL := strings.TrimSuffix(baseURL, "/") + "/api/v1/health"

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err == nil {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
