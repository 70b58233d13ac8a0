package services

import (
	"net"
	"regexp"
	"strings"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/BradenHooton/sentinel/pkg/auth"
)

const unknownValue = "Unknown"

type uaPattern struct {
	name string
	re   *regexp.Regexp
}

// Order matters: more specific tokens come first (Edge and Opera also carry "Chrome",
// iOS carries "Mac OS X", Android carries "Linux").
var browserPatterns = []uaPattern{
	{"Edge", regexp.MustCompile(`Edg(?:e|A|iOS)?/([\d.]+)`)},
	{"Opera", regexp.MustCompile(`(?:OPR|Opera)/([\d.]+)`)},
	{"Samsung Internet", regexp.MustCompile(`SamsungBrowser/([\d.]+)`)},
	{"Chrome", regexp.MustCompile(`(?:Chrome|CriOS)/([\d.]+)`)},
	{"Firefox", regexp.MustCompile(`(?:Firefox|FxiOS)/([\d.]+)`)},
	{"Safari", regexp.MustCompile(`Version/([\d.]+).*Safari/`)},
	{"Internet Explorer", regexp.MustCompile(`(?:MSIE |Trident/.*rv:)([\d.]+)`)},
}

var osPatterns = []uaPattern{
	{"Windows", regexp.MustCompile(`Windows NT ([\d.]+)`)},
	{"iOS", regexp.MustCompile(`(?:iPhone|iPad|iPod).*? OS ([\d_]+)`)},
	{"macOS", regexp.MustCompile(`Mac OS X ([\d_.]+)`)},
	{"Android", regexp.MustCompile(`Android ([\d.]+)`)},
	{"Chrome OS", regexp.MustCompile(`CrOS \S+ ([\d.]+)`)},
	{"Linux", regexp.MustCompile(`Linux()`)},
}

var (
	botPattern    = regexp.MustCompile(`(?i)bot|crawler|spider|curl|wget`)
	tabletPattern = regexp.MustCompile(`(?i)ipad|tablet`)
	mobilePattern = regexp.MustCompile(`(?i)mobi|iphone|ipod|android`)
)

func matchFirst(patterns []uaPattern, userAgent string) (string, string) {
	for _, p := range patterns {
		if m := p.re.FindStringSubmatch(userAgent); m != nil {
			version := ""
			if len(m) > 1 {
				version = strings.ReplaceAll(m[1], "_", ".")
			}
			return p.name, version
		}
	}
	return unknownValue, ""
}

// ParseUserAgent extracts device type, browser and OS. Unrecognised parts are "Unknown".
func ParseUserAgent(userAgent string) models.DeviceInfo {
	info := models.DeviceInfo{
		DeviceType: unknownValue,
		Browser:    unknownValue,
		OS:         unknownValue,
	}
	if strings.TrimSpace(userAgent) == "" {
		return info
	}

	info.Browser, info.BrowserVersion = matchFirst(browserPatterns, userAgent)
	info.OS, info.OSVersion = matchFirst(osPatterns, userAgent)

	switch {
	case botPattern.MatchString(userAgent):
		info.DeviceType = "Bot"
	case tabletPattern.MatchString(userAgent),
		info.OS == "Android" && !strings.Contains(userAgent, "Mobile"):
		info.DeviceType = "Tablet"
	case mobilePattern.MatchString(userAgent):
		info.DeviceType = "Mobile"
	case info.OS != unknownValue:
		info.DeviceType = "Desktop"
	}

	return info
}

// coarsenNetwork keeps the /24 of an IPv4 address or the /64 of an IPv6 address.
// Unparseable input is used as is.
func coarsenNetwork(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String() + "/24"
	}
	return parsed.Mask(net.CIDRMask(64, 128)).String() + "/64"
}

// Fingerprint derives a stable device id from the user agent and the client's network
func Fingerprint(userAgent, ip string) string {
	return auth.HashToken(userAgent + "|" + coarsenNetwork(ip))
}
