package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Access is the minimum caller level a path needs.
type Access int

const (
	Public Access = iota
	Authenticated
	AdminOnly
)

type Rule struct {
	Prefix string
	Access Access
}

// Policy maps path prefixes to access levels. The longest matching prefix
// wins; a path no rule covers needs authentication.
type Policy []Rule

var DefaultPolicy = Policy{
	{Prefix: "/healthz", Access: Public},
	{Prefix: "/metrics", Access: Public},
	{Prefix: "/payments/webhook", Access: Public},
	{Prefix: "/payments/", Access: Authenticated},
	{Prefix: "/inventory/", Access: AdminOnly},
}

func (p Policy) Lookup(path string) Access {
	best := -1
	access := Authenticated

	for _, r := range p {
		if strings.HasPrefix(path, r.Prefix) && len(r.Prefix) > best {
			best = len(r.Prefix)
			access = r.Access
		}
	}

	return access
}

// Allows reports whether a caller may use a path. id is nil for anonymous
// callers.
func (p Policy) Allows(path string, id *Identity) bool {
	switch p.Lookup(path) {
	case Public:
		return true
	case Authenticated:
		return id != nil
	case AdminOnly:
		return id != nil && id.Role == RoleAdmin
	default:
		return false
	}
}

// Middleware evaluates the policy once per request. A bearer token, when
// present, must be valid even on public paths.
func Middleware(v *Verifier, p Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id *Identity

			if token, ok := bearerToken(r); ok {
				parsed, err := v.Parse(token)
				if err != nil {
					writeDenied(w, http.StatusUnauthorized, "invalid or expired token")
					return
				}

				id = &parsed
				r = r.WithContext(WithIdentity(r.Context(), parsed))
			}

			if !p.Allows(r.URL.Path, id) {
				if id == nil {
					writeDenied(w, http.StatusUnauthorized, "authentication required")
				} else {
					writeDenied(w, http.StatusForbidden, "forbidden")
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}

	return strings.TrimSpace(token), true
}

func writeDenied(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(map[string]string{"error": msg})
	if err != nil {
		zap.L().Error("failed to encode auth error", zap.Error(err))
	}
}
