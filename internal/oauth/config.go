package oauth

import (
	"strings"
	"time"

	platformconfig "github.com/slideruleearth/sliderule-auth/internal/platform/config"
)

// Issuer is the iss claim stamped into every issued token.
const Issuer = "sliderule-github-oauth"

// ProviderEndpoints describes the identity provider's endpoint URLs.
// Tests point these at local httptest servers.
type ProviderEndpoints struct {
	AuthorizeURL  string
	TokenURL      string
	DeviceCodeURL string
	APIBaseURL    string
}

// Config describes the broker configuration.
type Config struct {
	ClientID             string
	Org                  string
	FrontendURL          string
	ClientSecretID       string
	SigningKeyID         string
	TokenExpiry          time.Duration
	HTTPTimeout          time.Duration
	StateExpiry          time.Duration
	AllowedRedirectHosts []string
	Provider             ProviderEndpoints
}

// brokerEnv holds raw env values before post-parse normalization.
type brokerEnv struct {
	ClientID           string   `env:"GITHUB_CLIENT_ID"`
	Org                string   `env:"GITHUB_ORG"                envDefault:"SlideRuleEarth"`
	FrontendURL        string   `env:"FRONTEND_URL"              envDefault:"https://testsliderule.org"`
	ClientSecretID     string   `env:"CLIENT_SECRET_NAME"`
	SigningKeyID       string   `env:"JWT_SIGNING_KEY_ARN"`
	TokenExpiryHours   int      `env:"JWT_EXPIRATION_HOURS"      envDefault:"12"`
	HTTPTimeoutSeconds int      `env:"HTTP_TIMEOUT_SECONDS"      envDefault:"15"`
	StateExpirySeconds int      `env:"STATE_EXPIRY_SECONDS"      envDefault:"600"`
	RedirectHosts      []string `env:"ALLOWED_REDIRECT_HOSTS"    envSeparator:","`
}

// defaultRedirectHosts is the fixed production allow-list. A redirect host
// is also accepted when it matches the configured frontend URL's host.
var defaultRedirectHosts = []string{
	"testsliderule.org",
	"client.slideruleearth.io",
	"localhost",
	"127.0.0.1",
}

// LoadConfigFromEnv loads broker configuration from environment variables.
func LoadConfigFromEnv() (Config, error) {
	var raw brokerEnv
	if err := platformconfig.ParseEnv(&raw); err != nil {
		return Config{}, err
	}

	hosts := trimCSV(raw.RedirectHosts)
	if len(hosts) == 0 {
		hosts = defaultRedirectHosts
	}

	return Config{
		ClientID:             raw.ClientID,
		Org:                  raw.Org,
		FrontendURL:          strings.TrimRight(raw.FrontendURL, "/"),
		ClientSecretID:       raw.ClientSecretID,
		SigningKeyID:         raw.SigningKeyID,
		TokenExpiry:          time.Duration(raw.TokenExpiryHours) * time.Hour,
		HTTPTimeout:          time.Duration(raw.HTTPTimeoutSeconds) * time.Second,
		StateExpiry:          time.Duration(raw.StateExpirySeconds) * time.Second,
		AllowedRedirectHosts: hosts,
		Provider:             GitHubEndpoints(),
	}, nil
}

// GitHubEndpoints returns the production GitHub endpoint set.
func GitHubEndpoints() ProviderEndpoints {
	return ProviderEndpoints{
		AuthorizeURL:  "https://github.com/login/oauth/authorize",
		TokenURL:      "https://github.com/login/oauth/access_token",
		DeviceCodeURL: "https://github.com/login/device/code",
		APIBaseURL:    "https://api.github.com/",
	}
}

// trimCSV removes empty entries from a string slice.
func trimCSV(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			result = append(result, v)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
