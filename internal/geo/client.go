// Package geo resolves visitor IPs to country codes, best-effort.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

type Client struct {
	BaseURL string
	Client  *http.Client
}

func New(timeout time.Duration) *Client {
	return &Client{
		BaseURL: "http://ip-api.com",
		Client:  &http.Client{Timeout: timeout},
	}
}

type lookupResponse struct {
	Status      string `json:"status"`
	CountryCode string `json:"countryCode"`
}

// Country resolves an IP to an ISO country code. Any failure returns an
// empty string; callers record the event regardless.
func (c *Client) Country(ctx context.Context, ip string) string {
	if ip == "" {
		return ""
	}

	u := fmt.Sprintf("%s/json/%s?fields=status,countryCode", c.BaseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return ""
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ""
	}
	if out.Status != "success" {
		return "" // private ranges and reserved addresses land here
	}
	return out.CountryCode
}
