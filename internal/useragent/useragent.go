// Package useragent picks the desktop user agent a session presents.
package useragent

import (
	"strings"

	"github.com/corpix/uarand"
)

// chromeDesktop narrows the bundled uarand list to desktop Chrome agents:
// the session runs in Chrome, so a Firefox or mobile agent would contradict
// the rest of the fingerprint.
func chromeDesktop(all []string) []string {
	var out []string
	for _, ua := range all {
		if !strings.Contains(ua, "Chrome/") {
			continue
		}
		switch {
		case strings.Contains(ua, "Mobile"), strings.Contains(ua, "Android"),
			strings.Contains(ua, "Edge/"), strings.Contains(ua, "Edg/"),
			strings.Contains(ua, "OPR/"), strings.Contains(ua, "CrOS"):
			continue
		}
		out = append(out, ua)
	}
	return out
}

// Picker returns a user agent for a new session.
type Picker func() string

// Random picks from uarand's desktop Chrome agents, or from its whole list
// if none qualify.
func Random() Picker {
	gen := uarand.Default
	if pool := chromeDesktop(uarand.UserAgents); len(pool) > 0 {
		gen = uarand.NewWithCustomList(pool)
	}
	return gen.GetRandom
}

// Fixed always returns ua.
func Fixed(ua string) Picker {
	return func() string { return ua }
}

// FromConfig pins ua when set and picks at random otherwise.
func FromConfig(ua string) Picker {
	if ua != "" {
		return Fixed(ua)
	}
	return Random()
}
