package actionlink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"actionlane/pkg/allowlist"
	"actionlane/pkg/token"
)

type Action string

const (
	// ActionTransfer spends to the counterparty.
	ActionTransfer Action = "transfer"
	// ActionRequest asks the counterparty to pay the builder's beneficiary.
	ActionRequest Action = "request"
)

var (
	ErrUnsupportedToken = errors.New("unsupported token")
	ErrBadCounterparty  = errors.New("invalid counterparty address")
)

type InvalidAmountError struct {
	Token  string
	Amount string
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %q for %s: %s", e.Amount, e.Token, e.Reason)
}

// Link is a validated, provider-resolvable spending or transfer intent.
// Immutable once built; ResolverURL has passed the allow-list before the
// value leaves the builder.
type Link struct {
	ResolverURL  string `json:"resolverUrl"`
	DeeplinkURL  string `json:"walletDeeplinkUrl"`
	ProxyURL     string `json:"proxyUrl"`
	Action       Action `json:"action"`
	Token        string `json:"token"`
	Amount       string `json:"amount"`
	Counterparty string `json:"counterparty"`
	Memo         string `json:"memo,omitempty"`
}

// Builder assembles allow-listed action links. The zero value is not
// usable; populate every base field.
type Builder struct {
	Policy         allowlist.Policy
	Catalog        token.Catalog
	ResolverBase   string // e.g. https://actions.dial.to/api/actions
	ProxyBase      string // e.g. https://proxy.internal
	DeeplinkScheme string // e.g. solana-action:
	Cluster        string // non-default network tag, empty for mainnet
}

// Build validates all inputs against the catalog and the allow-list and
// returns the link triple. It is pure: a failure leaves no partial state.
func (b *Builder) Build(ctx context.Context, action Action, tokenCode, counterparty, amount, memo string) (Link, error) {
	if action != ActionTransfer && action != ActionRequest {
		return Link{}, fmt.Errorf("unknown action %q", action)
	}
	counterparty = strings.TrimSpace(counterparty)
	if !ValidAddress(counterparty) {
		return Link{}, ErrBadCounterparty
	}
	tok, err := b.Catalog.Lookup(ctx, tokenCode)
	if err != nil {
		if errors.Is(err, token.ErrUnknownToken) {
			return Link{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, tokenCode)
		}
		return Link{}, err
	}
	norm, err := normalizeAmount(tok, amount)
	if err != nil {
		return Link{}, err
	}

	q := url.Values{}
	q.Set("recipient", counterparty)
	q.Set("token", tok.Code)
	q.Set("amount", norm)
	if memo != "" {
		q.Set("memo", memo)
	}
	if b.Cluster != "" && b.Cluster != "mainnet-beta" {
		q.Set("cluster", b.Cluster)
	}
	resolver := strings.TrimRight(b.ResolverBase, "/") + "/" + string(action) + "?" + q.Encode()

	if err := b.Policy.AssertAllowed(resolver); err != nil {
		return Link{}, err
	}

	return Link{
		ResolverURL:  resolver,
		DeeplinkURL:  b.DeeplinkScheme + resolver,
		ProxyURL:     strings.TrimRight(b.ProxyBase, "/") + "/blink?apiUrl=" + url.QueryEscape(resolver),
		Action:       action,
		Token:        tok.Code,
		Amount:       norm,
		Counterparty: counterparty,
		Memo:         memo,
	}, nil
}

// normalizeAmount parses a decimal string, truncates it to the token's
// declared decimals and checks the catalog bounds on the normalized value.
func normalizeAmount(tok token.Token, amount string) (string, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return "", &InvalidAmountError{Token: tok.Code, Amount: amount, Reason: "not a decimal"}
	}
	if d.Sign() <= 0 {
		return "", &InvalidAmountError{Token: tok.Code, Amount: amount, Reason: "must be positive"}
	}
	d = d.Truncate(tok.Decimals)
	if d.LessThan(tok.MinAmount) {
		return "", &InvalidAmountError{Token: tok.Code, Amount: amount, Reason: "below minimum " + tok.MinAmount.String()}
	}
	if d.GreaterThan(tok.MaxAmount) {
		return "", &InvalidAmountError{Token: tok.Code, Amount: amount, Reason: "above maximum " + tok.MaxAmount.String()}
	}
	return d.String(), nil
}
