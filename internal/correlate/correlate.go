// Package correlate assigns audio identifiers to newly extracted entries by
// position: the K-th qualifying network event belongs to the K-th new
// entry. There is no join key, so the assignment is all or nothing.
package correlate

import (
	"net/url"
	"slices"
	"strings"

	"github.com/hazyhaar/vhist/history"
	"github.com/hazyhaar/vhist/internal/browser"
)

// Result is the outcome of one correlation.
type Result struct {
	// Entries is a copy of the input metadata with identifiers filled in.
	Entries []history.Entry
	// Resolved lists the indices that received an identifier, ascending.
	Resolved []int
	// Want is the number of new entries; Got the number of matching events.
	Want, Got int
	// Mismatch is set when Want != Got. No entry is touched then.
	Mismatch bool
}

// Filter keeps the response-received events whose URL contains marker,
// in log order.
func Filter(events []browser.NetworkEvent, marker string) []browser.NetworkEvent {
	var out []browser.NetworkEvent
	for _, ev := range events {
		if ev.Method == browser.MethodResponseReceived && strings.Contains(ev.URL, marker) {
			out = append(out, ev)
		}
	}
	return out
}

// Count returns len(Filter(events, marker)) without allocating.
func Count(events []browser.NetworkEvent, marker string) int {
	n := 0
	for _, ev := range events {
		if ev.Method == browser.MethodResponseReceived && strings.Contains(ev.URL, marker) {
			n++
		}
	}
	return n
}

// DecodeID percent-decodes rawURL and returns what follows its last '='.
// A URL without '=' is returned decoded and whole.
func DecodeID(rawURL string) string {
	s, err := url.PathUnescape(rawURL)
	if err != nil {
		s = unquote(rawURL)
	}
	if i := strings.LastIndexByte(s, '='); i >= 0 {
		return s[i+1:]
	}
	return s
}

// unquote decodes every well-formed %XX escape and copies malformed ones
// through verbatim. Invalid UTF-8 in the result becomes U+FFFD.
func unquote(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if hi, ok := unhex(s[i+1]); ok {
				if lo, ok := unhex(s[i+2]); ok {
					b.WriteByte(hi<<4 | lo)
					i += 2
					continue
				}
			}
		}
		b.WriteByte(s[i])
	}
	return strings.ToValidUTF8(b.String(), "\uFFFD")
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Align pairs events with indices positionally. It returns nil unless the
// two lengths are equal. Indices are paired in ascending order whatever
// order they are given in.
func Align(ids []string, indices []int) map[int]string {
	if len(ids) != len(indices) {
		return nil
	}
	sorted := slices.Clone(indices)
	slices.Sort(sorted)
	m := make(map[int]string, len(sorted))
	for k, idx := range sorted {
		m[idx] = ids[k]
	}
	return m
}

// Correlate filters events by marker and writes the decoded identifiers
// onto entries at newIdx. On any count mismatch the whole correlation is
// abandoned and Result.Mismatch is set.
func Correlate(events []browser.NetworkEvent, newIdx []int, entries []history.Entry, marker string) Result {
	matched := Filter(events, marker)
	res := Result{
		Entries: slices.Clone(entries),
		Want:    len(newIdx),
		Got:     len(matched),
	}
	if res.Want != res.Got {
		res.Mismatch = true
		return res
	}

	ids := make([]string, len(matched))
	for k, ev := range matched {
		ids[k] = DecodeID(ev.URL)
	}
	for idx, id := range Align(ids, newIdx) {
		if idx < 0 || idx >= len(res.Entries) {
			continue
		}
		res.Entries[idx].AudioID = id
		res.Resolved = append(res.Resolved, idx)
	}
	slices.Sort(res.Resolved)
	return res
}
