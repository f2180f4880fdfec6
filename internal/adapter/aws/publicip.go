package aws

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// IPifyResolver asks api.ipify.org for the caller's public address.
type IPifyResolver struct {
	httpClient *http.Client
	url        string
}

// NewIPifyResolver creates a resolver against the public ipify endpoint.
func NewIPifyResolver(timeout time.Duration) *IPifyResolver {
	return &IPifyResolver{
		httpClient: &http.Client{Timeout: timeout},
		url:        "https://api.ipify.org",
	}
}

// PublicIP returns the IPv4 address ipify reports.
func (r *IPifyResolver) PublicIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipify request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("read ipify response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipify error: status %d: %s", resp.StatusCode, body)
	}

	ip := strings.TrimSpace(string(body))
	if parsed := net.ParseIP(ip); parsed == nil || parsed.To4() == nil {
		return "", fmt.Errorf("ipify returned %q, not an IPv4 address", ip)
	}
	return ip, nil
}
