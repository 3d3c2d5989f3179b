// Package origin models web origins (scheme+host+port) and the allowlist used
// to decide which cross-window messages a connect attempt may trust.
package origin

import (
	"fmt"
	"net/url"
	"strings"
)

// Origin is a normalized scheme://host[:port] tuple. Origins compare with ==.
type Origin struct {
	Scheme string
	Host   string // includes the port when one is present
}

// Parse extracts the origin of rawURL. It fails on anything that does not
// carry both a scheme and a host, since a partial origin is useless as a unit
// of trust.
func Parse(rawURL string) (Origin, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Origin{}, fmt.Errorf("parse origin: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Origin{}, fmt.Errorf("parse origin: %q has no scheme or host", rawURL)
	}
	return Origin{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host)}, nil
}

// MustParse is Parse for trusted, hardcoded inputs.
func MustParse(rawURL string) Origin {
	o, err := Parse(rawURL)
	if err != nil {
		panic(err)
	}
	return o
}

func (o Origin) String() string {
	return o.Scheme + "://" + o.Host
}

// IsZero reports whether o is the empty origin.
func (o Origin) IsZero() bool {
	return o.Scheme == "" && o.Host == ""
}

// Allowlist is an immutable set of trusted origins.
type Allowlist map[Origin]struct{}

// Derive builds an allowlist from configured base URLs. Malformed entries are
// dropped silently: one bad configuration value must not block the valid ones.
func Derive(bases []string) Allowlist {
	al := make(Allowlist, len(bases))
	for _, b := range bases {
		o, err := Parse(b)
		if err != nil {
			continue
		}
		al[o] = struct{}{}
	}
	return al
}

// Contains reports whether o is a trusted origin.
func (al Allowlist) Contains(o Origin) bool {
	_, ok := al[o]
	return ok
}
