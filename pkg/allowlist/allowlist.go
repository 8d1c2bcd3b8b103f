package allowlist

import (
	"fmt"
	"net/url"
	"strings"
)

// Policy is the approved destination space for action links. All three
// checks are mandatory and independent: secure transport, resolver domain
// suffix, action namespace prefix.
type Policy struct {
	Scheme     string
	HostSuffix string
	PathPrefix string
}

// Default returns the production policy.
func Default() Policy {
	return Policy{
		Scheme:     "https",
		HostSuffix: "dial.to",
		PathPrefix: "/api/actions/",
	}
}

type NotAllowedError struct {
	URL    string
	Reason string
}

func (e *NotAllowedError) Error() string {
	return fmt.Sprintf("destination not allowed: %s (%s)", e.URL, e.Reason)
}

// AssertAllowed re-parses raw and enforces the policy. It is called before
// a link is displayed or transmitted, and again by the execution proxy; no
// caller may reach the resolver without passing it.
func (p Policy) AssertAllowed(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return &NotAllowedError{URL: raw, Reason: "unparseable url"}
	}
	if !strings.EqualFold(u.Scheme, p.Scheme) {
		return &NotAllowedError{URL: raw, Reason: "scheme must be " + p.Scheme}
	}
	host := strings.ToLower(u.Hostname())
	suffix := strings.ToLower(p.HostSuffix)
	if host != suffix && !strings.HasSuffix(host, "."+suffix) {
		return &NotAllowedError{URL: raw, Reason: "host outside " + p.HostSuffix}
	}
	if !strings.HasPrefix(u.Path, p.PathPrefix) {
		return &NotAllowedError{URL: raw, Reason: "path outside " + p.PathPrefix}
	}
	// A literal prefix match is not enough: dot segments could still escape
	// the action namespace once the resolver normalizes the path.
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "." || seg == ".." {
			return &NotAllowedError{URL: raw, Reason: "path contains dot segments"}
		}
	}
	return nil
}
