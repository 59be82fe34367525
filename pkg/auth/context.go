package auth

import (
	"strings"

	"github.com/rhuss/ember/pkg/api"
)

type identityKey struct{}

// SetIdentity attaches id to req for the handlers behind Middleware.
func SetIdentity(req *api.Request, id *Identity) {
	req.Set(identityKey{}, id)
}

// IdentityFromRequest returns the identity Middleware attached, or nil on
// bypassed paths and unauthenticated requests.
func IdentityFromRequest(req *api.Request) *Identity {
	id, _ := req.Value(identityKey{}).(*Identity)
	return id
}

// BearerToken returns the credentials of an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func BearerToken(req *api.Request) (token string, ok bool) {
	scheme, token, _ := strings.Cut(req.Header("authorization"), " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(token), true
}
