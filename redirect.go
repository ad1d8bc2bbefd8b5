package guest

import (
	"net/url"
	"strings"
)

// RedirectResolver decides where a user lands after login or logout.
// External targets are silently replaced with the configured default so a
// crafted link cannot bounce a fresh session off site.
type RedirectResolver struct {
	cfg    Config
	logger Logger
}

func NewRedirectResolver(cfg Config) *RedirectResolver {
	return &RedirectResolver{cfg: cfg, logger: defLogger{}}
}

func (r *RedirectResolver) WithLogger(l Logger) *RedirectResolver {
	if l != nil {
		r.logger = l
	}
	return r
}

// Resolve picks the first safe candidate: the explicit request parameter,
// then the value stashed in the session, then the configured default.
func (r *RedirectResolver) Resolve(explicit, stored, role, currentHost string) string {
	for _, candidate := range []string{explicit, stored} {
		if candidate == "" {
			continue
		}
		if IsLocalURL(candidate, currentHost) {
			return candidate
		}
		r.logger.Warn("rejected external redirect target %q", candidate)
	}

	return r.defaultTarget(role)
}

func (r *RedirectResolver) defaultTarget(role string) string {
	switch r.cfg.RedirectDefault {
	case "", "home":
		if IsAdminRole(role) {
			return "/admin"
		}
		return "/"
	case "site", "top":
		return "/"
	case "me":
		return "/guest/me"
	default:
		return r.cfg.RedirectDefault
	}
}

// IsLocalURL reports whether raw stays on currentHost. Relative paths pass,
// protocol relative urls ("//evil.test") do not. Scheme and port are not
// compared, only the host.
func IsLocalURL(raw, currentHost string) bool {
	if raw == "" {
		return false
	}

	if strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//") {
		return true
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	if parsed.Host == "" {
		return true
	}

	return strings.EqualFold(parsed.Hostname(), hostOnly(currentHost))
}

// hostOnly strips an optional port from a Host header value.
func hostOnly(host string) string {
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.Contains(host[i:], "]") {
		return host[:i]
	}
	return strings.Trim(host, "[]")
}
