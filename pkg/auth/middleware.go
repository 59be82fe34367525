package auth

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/routing"
)

// forbiddenBody is the response text for rejected requests. The status
// set has no 401, so every authentication failure is a 403.
const forbiddenBody = "Forbidden."

// Middleware creates application-wide dispatcher middleware from a Chain.
// Requests for paths in bypass skip authentication; an entry ending in
// "/" bypasses everything below it. Rejected requests are answered with
// 403 and never reach the route table.
func Middleware(chain *Chain, bypass []string) routing.Middleware {
	skip := make(map[string]bool, len(bypass))
	var prefixes []string
	for _, p := range bypass {
		if strings.HasSuffix(p, "/") {
			prefixes = append(prefixes, p)
			continue
		}
		skip[p] = true
	}
	bypassed := func(path string) bool {
		if skip[path] {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}

	return routing.Middleware{
		Order: math.MinInt,
		Fn: func(ctx context.Context, req *api.Request) (*api.Response, error) {
			if bypassed(req.Path()) {
				return nil, nil
			}

			result := chain.Authenticate(ctx, req)
			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", req.Path(),
					"remote_addr", req.RemoteAddr,
					"error", result.Err,
				)
				return api.Text(forbiddenBody, api.StatusForbidden), nil
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject")
				return nil, api.NewServerError("internal authentication error", nil)
			}

			slog.Debug("authentication succeeded",
				"subject", result.Identity.Subject,
				"path", req.Path(),
			)
			SetIdentity(req, result.Identity)
			return nil, nil
		},
	}
}

// RequireScope returns controller middleware that rejects callers whose
// identity lacks scope.
func RequireScope(scope string) routing.Middleware {
	return routing.Use(func(ctx context.Context, req *api.Request) (*api.Response, error) {
		if !IdentityFromRequest(req).HasScope(scope) {
			slog.Debug("missing scope", "scope", scope, "path", req.Path())
			return api.Text(forbiddenBody, api.StatusForbidden), nil
		}
		return nil, nil
	})
}
