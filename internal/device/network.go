package device

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pysugar/homeauth/internal/domain"
	"github.com/pysugar/homeauth/internal/util"
)

// Default lookup endpoints. GeoURL carries an {ip} placeholder.
const (
	DefaultIPURL  = "https://api.ipify.org?format=json"
	DefaultGeoURL = "https://ipapi.co/{ip}/json/"
)

// NetworkLookup resolves the public IP and its geolocation.
type NetworkLookup struct {
	Client  *http.Client
	IPURL   string
	GeoURL  string
	Timeout time.Duration
}

type ipResponse struct {
	IP string `json:"ip"`
}

type geoResponse struct {
	IP          string   `json:"ip"`
	City        string   `json:"city"`
	Region      string   `json:"region"`
	CountryName string   `json:"country_name"`
	Postal      string   `json:"postal"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Error       bool     `json:"error"`
	Reason      string   `json:"reason"`
}

// PublicIP asks the IP echo service for this host's public address.
func (n *NetworkLookup) PublicIP(ctx context.Context) (string, error) {
	var resp ipResponse
	if err := n.getJSON(ctx, n.IPURL, &resp); err != nil {
		return "", fmt.Errorf("public ip lookup: %w", err)
	}
	if strings.TrimSpace(resp.IP) == "" {
		return "", fmt.Errorf("public ip lookup: empty response")
	}
	return strings.TrimSpace(resp.IP), nil
}

// Geolocate resolves ip to a location.
func (n *NetworkLookup) Geolocate(ctx context.Context, ip string) (*domain.Location, error) {
	var resp geoResponse
	url := strings.ReplaceAll(n.GeoURL, "{ip}", ip)
	if err := n.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("geo lookup: %w", err)
	}
	if resp.Error {
		return nil, fmt.Errorf("geo lookup: %s", resp.Reason)
	}

	loc := &domain.Location{
		Latitude:   resp.Latitude,
		Longitude:  resp.Longitude,
		City:       resp.City,
		Country:    resp.CountryName,
		PostalCode: resp.Postal,
		Region:     resp.Region,
	}
	var parts []string
	for _, p := range []string{resp.City, resp.Region, resp.CountryName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	loc.Address = strings.Join(parts, ", ")
	return loc, nil
}

func (n *NetworkLookup) getJSON(ctx context.Context, url string, out interface{}) error {
	if n.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, util.BodySnippet(resp.Body))
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(out)
}
