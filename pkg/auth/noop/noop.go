// Package noop provides an authenticator that accepts every request.
// It backs auth.type "none" so the identity is always populated.
package noop

import (
	"context"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/auth"
)

// Authenticator always returns Yes with the anonymous identity.
type Authenticator struct{}

func (Authenticator) Authenticate(_ context.Context, _ *api.Request) auth.Result {
	return auth.Result{Decision: auth.Yes, Identity: auth.Anonymous()}
}
