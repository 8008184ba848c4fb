// Package health checks that the portal and a running tuner answer.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/snapetech/stalkertuner/internal/httpclient"
)

// CheckPortal fetches the portal base URL. Any HTTP answer below 500 counts as reachable:
// portals commonly reply 403 or 404 to a bare GET without STB headers.
func CheckPortal(ctx context.Context, portalBase string) error {
	portalBase = strings.TrimSpace(portalBase)
	if portalBase == "" {
		return fmt.Errorf("no portal URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(portalBase, "/")+"/", nil)
	if err != nil {
		return err
	}
	client := httpclient.NoRedirect(httpclient.WithTimeout(15 * time.Second))
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("portal unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("portal returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// CheckEndpoints hits the info page and /metrics at baseURL and returns the first error or nil.
// /healthz is reported but a 503 (no catalog yet) is not an error.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	baseURL = strings.TrimSuffix(baseURL, "/")
	for _, path := range []string{"/", "/metrics", "/healthz"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp.Body.Close()
		if path == "/healthz" && resp.StatusCode == http.StatusServiceUnavailable {
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil
}
