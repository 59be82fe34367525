// Package auth provides pluggable authentication for ember applications.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Auth plugs into the dispatcher as application-wide middleware, so a
// rejected request is answered with 403 before any route is looked up.
// The identity is stored on the request for controllers and actions.
package auth
