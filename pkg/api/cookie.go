package api

import (
	"net/url"
	"strings"
	"time"
)

// cookieTimeFormat is RFC 1123 with the mandatory GMT zone.
const cookieTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// SameSite is the SameSite attribute of a cookie.
type SameSite uint8

const (
	// SameSiteDefault omits the attribute.
	SameSiteDefault SameSite = iota
	SameSiteStrict
	SameSiteLax
	SameSiteNone
)

func (s SameSite) String() string {
	switch s {
	case SameSiteStrict:
		return "Strict"
	case SameSiteLax:
		return "Lax"
	case SameSiteNone:
		return "None"
	}
	return ""
}

// Cookie describes a Set-Cookie header. Path defaults to "/".
// Secure cookies get "; HttpOnly; Secure" appended by the writer unless
// the server runs with insecure cookies enabled.
type Cookie struct {
	Name     string
	Value    string
	Path     string
	Expires  time.Time
	Secure   bool
	SameSite SameSite
}

// String renders the cookie without the security attributes.
func (c Cookie) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(url.QueryEscape(c.Value))
	b.WriteString("; Path=")
	if c.Path == "" {
		b.WriteByte('/')
	} else {
		b.WriteString(c.Path)
	}
	if !c.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(cookieTimeFormat))
	}
	if c.SameSite != SameSiteDefault {
		b.WriteString("; SameSite=")
		b.WriteString(c.SameSite.String())
	}
	return b.String()
}
