package allowlist

import (
	"errors"
	"testing"
)

func TestAssertAllowed(t *testing.T) {
	p := Default()
	cases := []struct {
		name string
		url  string
		ok   bool
	}{
		{"canonical", "https://actions.dial.to/api/actions/transfer?amount=1.5", true},
		{"apex host", "https://dial.to/api/actions/transfer", true},
		{"uppercase scheme", "HTTPS://actions.dial.to/api/actions/transfer", true},
		{"mixed case host", "https://Actions.DIAL.to/api/actions/request", true},
		{"trailing slash path", "https://actions.dial.to/api/actions/", true},
		{"http", "http://actions.dial.to/api/actions/transfer", false},
		{"tampered host", "https://actions.evil.to/api/actions/transfer", false},
		{"suffix embedded in label", "https://evildial.to/api/actions/transfer", false},
		{"wrong namespace", "https://actions.dial.to/api/other/transfer", false},
		{"namespace without slash", "https://actions.dial.to/api/actions", false},
		{"parent dot segment", "https://dial.to/api/actions/../other", false},
		{"single dot segment", "https://dial.to/api/actions/./transfer", false},
		{"empty", "", false},
		{"garbage", "::::", false},
	}
	for _, tc := range cases {
		err := p.AssertAllowed(tc.url)
		if tc.ok && err != nil {
			t.Fatalf("%s: AssertAllowed(%q) = %v, want nil", tc.name, tc.url, err)
		}
		if !tc.ok {
			var na *NotAllowedError
			if !errors.As(err, &na) {
				t.Fatalf("%s: AssertAllowed(%q) = %v, want NotAllowedError", tc.name, tc.url, err)
			}
		}
	}
}

func TestAssertAllowedIdempotent(t *testing.T) {
	p := Default()
	urls := []string{
		"https://actions.dial.to/api/actions/transfer?token=USDC",
		"https://actions.evil.to/api/actions/transfer",
	}
	for _, u := range urls {
		first := p.AssertAllowed(u)
		second := p.AssertAllowed(u)
		if (first == nil) != (second == nil) {
			t.Fatalf("AssertAllowed(%q) not stable: %v then %v", u, first, second)
		}
	}
}
