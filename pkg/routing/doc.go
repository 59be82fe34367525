// Package routing maps request paths to application actions.
//
// Applications describe their surface as a list of Controllers, each with a
// path prefix, actions, parameter declarations and middleware. Build
// compiles that list once into an immutable Table: a byte trie over
// prefix+actionName that matches in time proportional to the path length.
// The Dispatcher runs middleware, looks the path up, binds parameters and
// invokes the action, turning every failure into a response.
package routing
