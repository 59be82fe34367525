// Package auth decides who is calling. Authenticators vote on each request
// and a Chain turns the votes into one Result; Middleware installs the
// chain in front of the route table and answers rejections with 403.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/debug"
)

// Decision is an authenticator's vote.
type Decision int

const (
	// Yes accepts the credentials and ends the chain.
	Yes Decision = iota
	// No rejects the credentials and ends the chain.
	No
	// Abstain passes the request to the next authenticator, typically
	// because the credentials are of a kind this one does not handle.
	Abstain
)

var decisionNames = [...]string{Yes: "yes", No: "no", Abstain: "abstain"}

func (d Decision) String() string {
	if d < 0 || int(d) >= len(decisionNames) {
		return fmt.Sprintf("Decision(%d)", int(d))
	}
	return decisionNames[d]
}

// Result is a vote plus what backs it: an Identity for Yes, an error for No.
type Result struct {
	Decision Decision
	Identity *Identity
	Err      error
}

// Identity is an authenticated caller. Subject is never empty.
type Identity struct {
	Subject  string
	Scopes   []string
	Metadata map[string]string
}

// HasScope reports whether the identity was granted scope. A nil identity
// has no scopes.
func (id *Identity) HasScope(scope string) bool {
	return id != nil && slices.Contains(id.Scopes, scope)
}

// Anonymous is the identity handed out when every authenticator abstains
// and the chain defaults to Yes.
func Anonymous() *Identity {
	return &Identity{Subject: "anonymous"}
}

// Authenticator votes on the credentials of one request.
type Authenticator interface {
	Authenticate(ctx context.Context, req *api.Request) Result
}

// ErrUnauthenticated backs No results that carry no more specific error.
var ErrUnauthenticated = errors.New("authentication required")

// Chain asks its authenticators in order. The first Yes or No wins; when
// all of them abstain, DefaultDecision applies.
type Chain struct {
	Authenticators  []Authenticator
	DefaultDecision Decision
}

// Authenticate runs the chain for req.
func (c *Chain) Authenticate(ctx context.Context, req *api.Request) Result {
	for i, a := range c.Authenticators {
		result := a.Authenticate(ctx, req)
		if result.Decision == Abstain {
			continue
		}
		debug.Log("auth", "vote", "authenticator", i, "type", fmt.Sprintf("%T", a), "decision", result.Decision)
		return result
	}

	debug.Log("auth", "all authenticators abstained", "default", c.DefaultDecision)
	if c.DefaultDecision == Yes {
		return Result{Decision: Yes, Identity: Anonymous()}
	}
	return Result{Decision: No, Err: ErrUnauthenticated}
}
