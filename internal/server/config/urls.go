package config

import "strings"

// CookieSettings are the attributes applied to the auth cookies.
type CookieSettings struct {
	Secure   bool
	SameSite string
	Domain   string
	Path     string
}

// BuildURL joins protocol, domain and port, omitting the port when it is the
// protocol default.
func BuildURL(domain, protocol, port string) string {
	if protocol == "" {
		protocol = "http"
	}
	if domain == "" {
		domain = "localhost"
	}
	if port == "" || (protocol == "http" && port == "80") || (protocol == "https" && port == "443") {
		return protocol + "://" + domain
	}
	return protocol + "://" + domain + ":" + port
}

// FrontendURL is the base URL used in email links.
func (c *Config) FrontendURL() string {
	return BuildURL(c.AppDomain, c.protocol(), c.FrontendPort)
}

// BackendURL is the public base URL of this server.
func (c *Config) BackendURL() string {
	return BuildURL(c.AppDomain, c.protocol(), c.BackendPort)
}

// AllowedOrigins lists the CORS origins in priority order without duplicates:
// frontend, backend, localhost and 127.0.0.1 on both ports, then extras.
func (c *Config) AllowedOrigins() []string {
	protocol := c.protocol()
	frontendPort := orDefault(strings.TrimSpace(c.FrontendPort), "3000")
	backendPort := orDefault(strings.TrimSpace(c.BackendPort), "8001")

	candidates := []string{
		originOf(c.FrontendURL()),
		originOf(c.BackendURL()),
		protocol + "://localhost:" + frontendPort,
		protocol + "://127.0.0.1:" + frontendPort,
		protocol + "://localhost:" + backendPort,
		protocol + "://127.0.0.1:" + backendPort,
	}
	candidates = append(candidates, c.ExtraAllowedOrigins...)

	seen := make(map[string]struct{}, len(candidates))
	ordered := make([]string, 0, len(candidates))
	for _, o := range candidates {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		ordered = append(ordered, o)
	}
	return ordered
}

// Cookie derives cookie attributes. Secure defaults to true only for https
// deployments; an unknown SameSite value falls back to lax.
func (c *Config) Cookie() CookieSettings {
	secure := c.protocol() == "https"
	if c.CookieSecure != nil {
		secure = *c.CookieSecure
	}

	sameSite := strings.ToLower(strings.TrimSpace(c.CookieSameSite))
	switch sameSite {
	case "lax", "strict", "none":
	default:
		sameSite = "lax"
	}

	return CookieSettings{
		Secure:   secure,
		SameSite: sameSite,
		Domain:   strings.TrimSpace(c.CookieDomain),
		Path:     orDefault(strings.TrimSpace(c.CookiePath), "/"),
	}
}

func (c *Config) protocol() string {
	return orDefault(strings.ToLower(strings.TrimSpace(c.AppProtocol)), "http")
}

// originOf strips any path from an absolute URL, leaving scheme://host[:port].
func originOf(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	authority, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + authority
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
