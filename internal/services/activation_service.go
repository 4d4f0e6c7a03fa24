package services

import (
	"encoding/json"
	"fmt"

	"proxyhub-api/internal/config"
	"proxyhub-api/pkg/logging"

	"github.com/google/uuid"
)

// ProtocolEndpoint is one host:port a client connects through
type ProtocolEndpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ProviderEndpoints is the per-provider (optionally per-region) connection
// data. This is configuration, not business logic: it is injected so new
// providers and regions are a config change, not a code change.
type ProviderEndpoints struct {
	HTTP     ProtocolEndpoint `json:"http"`
	SOCKS5   ProtocolEndpoint `json:"socks5"`
	Location string           `json:"location"`
}

// EndpointTable maps "providerID" or "providerID:region" to endpoints
type EndpointTable map[string]ProviderEndpoints

// PlanCredentials are the raw user/pass returned by the provider
type PlanCredentials struct {
	User string
	Pass string
}

// ProxyAccessDescriptor is the canonical proxy-access shape returned to
// clients. Derived on demand, never persisted.
type ProxyAccessDescriptor struct {
	HTTP      ProtocolEndpoint `json:"http"`
	SOCKS5    ProtocolEndpoint `json:"socks5"`
	Login     string           `json:"login"`
	Password  string           `json:"password"`
	Location  string           `json:"location"`
	SessionID string           `json:"session_id"`
}

// ActivationService formats raw provider credentials into a
// ProxyAccessDescriptor using the injected endpoint table.
type ActivationService struct {
	endpoints EndpointTable
}

// NewActivationService creates an activation service with the given table
func NewActivationService(endpoints EndpointTable) *ActivationService {
	return &ActivationService{endpoints: endpoints}
}

// DefaultEndpointTable returns the built-in provider endpoint data,
// overridden by PROXY_ENDPOINTS_JSON when set.
func DefaultEndpointTable() EndpointTable {
	table := EndpointTable{
		"1": {
			HTTP:     ProtocolEndpoint{Host: "resi.lightningproxies.net", Port: 9999},
			SOCKS5:   ProtocolEndpoint{Host: "resi.lightningproxies.net", Port: 10000},
			Location: "worldwide",
		},
	}

	if config.AppConfig != nil && config.AppConfig.ProxyEndpointsJSON != "" {
		var override EndpointTable
		if err := json.Unmarshal([]byte(config.AppConfig.ProxyEndpointsJSON), &override); err != nil {
			logging.Errorf("Ignoring invalid PROXY_ENDPOINTS_JSON: %v", err)
		} else {
			for key, endpoints := range override {
				table[key] = endpoints
			}
		}
	}

	return table
}

// Format maps provider credentials to a proxy-access descriptor. Region
// entries ("providerID:region") take precedence over the provider default.
func (s *ActivationService) Format(creds PlanCredentials, providerID uint, region string) (*ProxyAccessDescriptor, error) {
	if creds.User == "" || creds.Pass == "" {
		return nil, fmt.Errorf("%w: provider returned empty credentials", ErrMalformedUpstreamResponse)
	}

	endpoints, ok := s.lookup(providerID, region)
	if !ok {
		return nil, fmt.Errorf("%w: no endpoint mapping for provider %d", ErrNotFound, providerID)
	}

	return &ProxyAccessDescriptor{
		HTTP:      endpoints.HTTP,
		SOCKS5:    endpoints.SOCKS5,
		Login:     creds.User,
		Password:  creds.Pass,
		Location:  endpoints.Location,
		SessionID: uuid.NewString(),
	}, nil
}

func (s *ActivationService) lookup(providerID uint, region string) (ProviderEndpoints, bool) {
	if region != "" {
		if endpoints, ok := s.endpoints[fmt.Sprintf("%d:%s", providerID, region)]; ok {
			return endpoints, true
		}
	}
	endpoints, ok := s.endpoints[fmt.Sprintf("%d", providerID)]
	return endpoints, ok
}
