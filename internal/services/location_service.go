package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/BradenHooton/sentinel/internal/models"
)

// LocationResolver maps an IP to a location. A nil location with a nil error means unknown.
type LocationResolver interface {
	Resolve(ctx context.Context, ip string) (*models.Location, error)
}

// localLocation is returned for private, loopback and link-local addresses
func localLocation() *models.Location {
	return &models.Location{
		Country:     models.LocalNetworkCountry,
		CountryCode: "LN",
		City:        models.LocalNetworkCountry,
	}
}

// isLocalAddress reports whether ip never reaches the public internet
func isLocalAddress(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// HTTPLocationResolver queries a JSON geolocation endpoint in the ip-api.com format.
// urlTemplate contains one %s for the address.
type HTTPLocationResolver struct {
	client      *http.Client
	urlTemplate string
	logger      *slog.Logger
}

func NewHTTPLocationResolver(client *http.Client, urlTemplate string, logger *slog.Logger) *HTTPLocationResolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLocationResolver{
		client:      client,
		urlTemplate: urlTemplate,
		logger:      logger,
	}
}

type ipAPIResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	City        string `json:"city"`
	Proxy       bool   `json:"proxy"`
	Hosting     bool   `json:"hosting"`
	Tor         bool   `json:"tor"`
}

// Resolve looks up ip. Local addresses short-circuit without a network call.
// The caller's context bounds the request.
func (r *HTTPLocationResolver) Resolve(ctx context.Context, ip string) (*models.Location, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return nil, nil
	}
	if isLocalAddress(parsed) {
		return localLocation(), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(r.urlTemplate, parsed.String()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build location request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("location lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("location lookup returned status %d", resp.StatusCode)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode location response: %w", err)
	}

	if body.Status != "" && body.Status != "success" {
		r.logger.DebugContext(ctx, "location unknown",
			slog.String("ip_address", ip),
			slog.String("reason", body.Message),
		)
		return nil, nil
	}

	return &models.Location{
		Country:     body.Country,
		CountryCode: body.CountryCode,
		City:        body.City,
		IsVPN:       body.Hosting,
		IsProxy:     body.Proxy,
		IsTor:       body.Tor,
	}, nil
}

// StaticLocationResolver resolves only local addresses and reports every other one as unknown.
// It is used when no resolver endpoint is configured.
type StaticLocationResolver struct{}

func (StaticLocationResolver) Resolve(_ context.Context, ip string) (*models.Location, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed != nil && isLocalAddress(parsed) {
		return localLocation(), nil
	}
	return nil, nil
}
