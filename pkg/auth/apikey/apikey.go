// Package apikey provides an API key authenticator that validates
// bearer tokens against a static key store using SHA-256 hashing
// and constant-time comparison.
package apikey

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"

	"github.com/rhuss/ember/pkg/api"
	"github.com/rhuss/ember/pkg/auth"
)

// Entry is the configuration format for one API key.
type Entry struct {
	Key      string
	Identity auth.Identity
}

type hashedEntry struct {
	hash     [32]byte
	identity auth.Identity
}

// Authenticator validates bearer tokens against a static key store.
type Authenticator struct {
	keys []hashedEntry
}

// New creates an API key authenticator. Keys are hashed immediately;
// plaintext keys are not retained.
func New(entries []Entry) *Authenticator {
	a := &Authenticator{keys: make([]hashedEntry, 0, len(entries))}
	for _, e := range entries {
		a.keys = append(a.keys, hashedEntry{hash: sha256.Sum256([]byte(e.Key)), identity: e.Identity})
	}
	return a
}

// Authenticate returns Yes for a known key, No for an unknown or empty
// bearer token, and Abstain when there is no bearer token at all.
func (a *Authenticator) Authenticate(_ context.Context, req *api.Request) auth.Result {
	token, ok := auth.BearerToken(req)
	if !ok {
		return auth.Result{Decision: auth.Abstain}
	}
	if token == "" {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	tokenHash := sha256.Sum256([]byte(token))
	match := -1
	// Compare against every entry so timing does not reveal the position.
	for i := range a.keys {
		if subtle.ConstantTimeCompare(tokenHash[:], a.keys[i].hash[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return auth.Result{Decision: auth.No, Err: auth.ErrUnauthenticated}
	}

	id := a.keys[match].identity
	return auth.Result{Decision: auth.Yes, Identity: &id}
}
