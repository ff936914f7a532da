// ABOUTME: Constructs the production SSRF-safe HTTP client for webhook delivery.
// ABOUTME: Uses doyensec/safeurl with redirect following disabled.
package notify

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// BuildSafeClient returns an SSRF-safe *http.Client for webhook delivery.
// Redirect following is disabled so signed requests cannot be replayed to
// attacker-chosen hosts.
func BuildSafeClient(timeout time.Duration) (*http.Client, error) {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetCheckRedirect(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}).
		Build()
	return safeurl.Client(cfg).Client, nil
}
