package models

// LocalNetworkCountry is the country reported for private and loopback addresses
const LocalNetworkCountry = "Local Network"

// Location is the result of resolving a client IP
type Location struct {
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	City        string `json:"city"`
	IsVPN       bool   `json:"is_vpn"`
	IsProxy     bool   `json:"is_proxy"`
	IsTor       bool   `json:"is_tor"`
}

// IsLocal reports whether the location is the fixed local network result
func (l *Location) IsLocal() bool {
	return l != nil && l.Country == LocalNetworkCountry
}

// IsAnonymized reports whether the address is flagged as VPN, proxy or Tor
func (l *Location) IsAnonymized() bool {
	return l != nil && (l.IsVPN || l.IsProxy || l.IsTor)
}

// Describe returns a short "City, Country" label
func (l *Location) Describe() string {
	if l == nil {
		return "Unknown"
	}
	if l.City == "" {
		return l.Country
	}
	return l.City + ", " + l.Country
}
