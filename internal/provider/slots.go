package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IsLocalEndpoint reports whether the API URL points at a self-hosted
// server: localhost, a loopback address, or any literal IP host.
func IsLocalEndpoint(apiURL string) bool {
	u, err := url.Parse(apiURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	return net.ParseIP(host) != nil
}

// ProbeSlots asks a llama.cpp-style server how many parallel slots it
// serves. The /slots endpoint lives at the server root, above any /v1
// path prefix.
func ProbeSlots(ctx context.Context, apiURL string) (int, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return 0, fmt.Errorf("parse api url: %w", err)
	}
	u.Path = "/slots"
	u.RawQuery = ""

	reqCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe slots: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("probe slots: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read slots response: %w", err)
	}
	var slots []json.RawMessage
	if err := json.Unmarshal(data, &slots); err != nil {
		return 0, fmt.Errorf("decode slots response: %w", err)
	}
	if len(slots) == 0 {
		return 0, fmt.Errorf("server reports no slots")
	}
	return len(slots), nil
}
