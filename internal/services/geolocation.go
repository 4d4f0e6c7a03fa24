package services

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"proxyhub-api/pkg/logging"
)

// GeoInfo carries the egress IP and region used when creating ISP plans
type GeoInfo struct {
	IP     string
	Region string
}

// GeoLocator resolves the IP/region parameters for ISP plan creation.
// Injected into provisioning so the purchase logic is testable without
// network access.
type GeoLocator interface {
	Lookup(ctx context.Context) (GeoInfo, error)
}

// IPLookupService resolves GeoInfo from public IP/region APIs
type IPLookupService struct {
	httpClient *http.Client
	ipURL      string
	regionURL  string
}

// NewIPLookupService creates a GeoLocator backed by ipify and ipinfo
func NewIPLookupService() *IPLookupService {
	return &IPLookupService{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ipURL:      "https://api.ipify.org?format=json",
		regionURL:  "https://ipinfo.io/json",
	}
}

// Lookup fetches IP and region, falling back to sentinel values when a
// lookup fails so ISP plan creation can still proceed.
func (s *IPLookupService) Lookup(ctx context.Context) (GeoInfo, error) {
	info := GeoInfo{IP: "unknown_ip", Region: "unknown_region"}

	var ipResp struct {
		IP string `json:"ip"`
	}
	if err := s.getJSON(ctx, s.ipURL, &ipResp); err != nil {
		logging.Errorf("Failed to look up egress IP: %v", err)
	} else if ipResp.IP != "" {
		info.IP = ipResp.IP
	}

	var regionResp struct {
		Region string `json:"region"`
	}
	if err := s.getJSON(ctx, s.regionURL, &regionResp); err != nil {
		logging.Errorf("Failed to look up region: %v", err)
	} else if regionResp.Region != "" {
		info.Region = regionResp.Region
	}

	return info, nil
}

func (s *IPLookupService) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return json.NewDecoder(resp.Body).Decode(out)
}
