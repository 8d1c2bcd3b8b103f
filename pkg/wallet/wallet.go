// Package wallet declares the signing capabilities this layer consumes.
// Key management itself lives behind these interfaces and never enters the
// repository.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"actionlane/pkg/txcodec"
)

// Signer signs and submits one transaction, returning its signature.
type Signer interface {
	SignAndSend(ctx context.Context, tx txcodec.Transaction) (string, error)
}

// Confirmer waits until a submitted signature reaches the confirmed
// commitment level.
type Confirmer interface {
	AwaitConfirmed(ctx context.Context, signature string) error
}

// Opener opens a URL in an external context (the wallet's own UI). Used as
// the fallback path when in-app execution cannot complete.
type Opener interface {
	Open(url string) error
}

// Session bundles one account's capabilities for a single execution flow.
type Session struct {
	Account   string
	Signer    Signer
	Confirmer Confirmer
	Opener    Opener
}

// DeclineCode is the well-known code wallets return when the user rejects
// a signature request.
const DeclineCode = 4001

type DeclineError struct {
	Code    int
	Message string
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("wallet declined (%d): %s", e.Code, e.Message)
}

// IsUserDecline reports whether err represents the user refusing to sign,
// either via the well-known decline code or the rejection vocabulary
// wallets put in error messages. A decline is the user's final word; it is
// never conflated with a timeout.
func IsUserDecline(err error) bool {
	if err == nil {
		return false
	}
	var de *DeclineError
	if errors.As(err, &de) {
		return de.Code == DeclineCode
	}
	msg := strings.ToLower(err.Error())
	for _, word := range []string{"user rejected", "rejected the request", "declined", "cancelled", "canceled"} {
		if strings.Contains(msg, word) {
			return true
		}
	}
	return false
}
