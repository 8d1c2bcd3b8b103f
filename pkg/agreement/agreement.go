// Package agreement implements the two-party signature handshake over a
// terms object: the proposer publishes terms, the counterparty signs, the
// proposer counter-signs, and settlement proof can then be attached and
// verified against the terms hash.
package agreement

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"actionlane/pkg/actionlink"
)

type Status string

const (
	StatusPendingB   Status = "pending_b"
	StatusPendingA   Status = "pending_a"
	StatusSignedBoth Status = "signed_both"
	// StatusExpired is a derived display status; it is never stored.
	StatusExpired Status = "expired"
)

var (
	ErrBadTransition     = errors.New("agreement not in a signable state")
	ErrWrongSigner       = errors.New("signer not permitted at this step")
	ErrNotParticipant    = errors.New("caller is not a participant")
	ErrNotSettleable     = errors.New("agreement not settleable")
	ErrAlreadySettled    = errors.New("settlement already recorded")
	ErrBadSignature      = errors.New("invalid transaction signature")
	ErrMissingSignatures = errors.New("both signatures required")
)

// Terms is the agreement content. The creator owns the identity. Hash is
// computed once at creation and never recomputed; it is the anchor any
// on-chain proof must reproduce.
type Terms struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Body         string     `json:"body,omitempty"`
	Participants [2]string  `json:"participants"`
	CreatedBy    string     `json:"createdBy"`
	Payer        string     `json:"payer,omitempty"`
	Payee        string     `json:"payee,omitempty"`
	Amount       string     `json:"amount,omitempty"`
	Token        string     `json:"token,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	Hash         string     `json:"hash"`
}

// Counterparty returns the participant that did not create the agreement.
func (t Terms) Counterparty() string {
	if t.Participants[0] == t.CreatedBy {
		return t.Participants[1]
	}
	return t.Participants[0]
}

func (t Terms) isParticipant(account string) bool {
	return account == t.Participants[0] || account == t.Participants[1]
}

type NewParams struct {
	Title        string
	Body         string
	Participants [2]string
	CreatedBy    string
	Payer        string
	Payee        string
	Amount       string
	Token        string
	Deadline     *time.Time
}

// New validates the terms, assigns an id and computes the hash.
func New(p NewParams, now time.Time) (Terms, error) {
	if strings.TrimSpace(p.Title) == "" {
		return Terms{}, errors.New("title is required")
	}
	for _, addr := range p.Participants {
		if !actionlink.ValidAddress(addr) {
			return Terms{}, fmt.Errorf("invalid participant address %q", addr)
		}
	}
	if p.Participants[0] == p.Participants[1] {
		return Terms{}, errors.New("participants must be distinct")
	}
	t := Terms{
		ID:           "agr_" + uuid.NewString(),
		Title:        strings.TrimSpace(p.Title),
		Body:         strings.TrimSpace(p.Body),
		Participants: p.Participants,
		CreatedBy:    p.CreatedBy,
		Payer:        p.Payer,
		Payee:        p.Payee,
		Token:        strings.ToUpper(strings.TrimSpace(p.Token)),
		Deadline:     p.Deadline,
		CreatedAt:    now.UTC(),
	}
	if !t.isParticipant(t.CreatedBy) {
		return Terms{}, errors.New("createdBy must be a participant")
	}
	for _, role := range []string{t.Payer, t.Payee} {
		if role != "" && !t.isParticipant(role) {
			return Terms{}, errors.New("payer and payee must be participants")
		}
	}
	if p.Amount != "" {
		d, err := decimal.NewFromString(strings.TrimSpace(p.Amount))
		if err != nil || d.Sign() <= 0 {
			return Terms{}, fmt.Errorf("invalid amount %q", p.Amount)
		}
		t.Amount = d.String()
	}
	if (t.Amount == "") != (t.Token == "") {
		return Terms{}, errors.New("amount and token must be set together")
	}
	t.Hash = TermsHash(t)
	return t, nil
}

// Patch is a field-wise receipt update. Unset fields are not touched by
// the merge, so two racing partial updates cannot erase recorded
// signatures.
type Patch struct {
	Status     *Status         `json:"status,omitempty"`
	TxSigB     *string         `json:"txSigB,omitempty"`
	TxSigA     *string         `json:"txSigA,omitempty"`
	Settlement *SettlementInfo `json:"settlement,omitempty"`
	Payment    *PaymentInfo    `json:"payment,omitempty"`
}

type SettlementInfo struct {
	Status string `json:"status"`
	TxSig  string `json:"txSig"`
}

type PaymentInfo struct {
	Status      string    `json:"status"`
	TxSig       string    `json:"txSig"`
	CompletedAt time.Time `json:"completedAt"`
}

// Receipt is the mutable record both participants write to. Exactly one
// exists per agreement.
type Receipt struct {
	Status     Status          `json:"status"`
	Hash       string          `json:"hash"`
	TxSigB     string          `json:"txSigB,omitempty"`
	TxSigA     string          `json:"txSigA,omitempty"`
	Settlement *SettlementInfo `json:"settlement,omitempty"`
	Payment    *PaymentInfo    `json:"payment,omitempty"`
}

// NewReceipt is the receipt at creation time.
func NewReceipt(t Terms) Receipt {
	return Receipt{Status: StatusPendingB, Hash: t.Hash}
}

var statusRank = map[Status]int{StatusPendingB: 0, StatusPendingA: 1, StatusSignedBoth: 2}

// ApplyPatch merges p into r field by field. Status only moves forward.
func ApplyPatch(r Receipt, p Patch) Receipt {
	if p.Status != nil && statusRank[*p.Status] >= statusRank[r.Status] {
		r.Status = *p.Status
	}
	if p.TxSigB != nil {
		r.TxSigB = *p.TxSigB
	}
	if p.TxSigA != nil {
		r.TxSigA = *p.TxSigA
	}
	if p.Settlement != nil {
		r.Settlement = p.Settlement
	}
	if p.Payment != nil {
		r.Payment = p.Payment
	}
	return r
}

// AckSignature is the off-chain acknowledgement recorded when no on-chain
// transaction is required for a signing step. It is derived from the terms
// hash so verification can re-check it without network access.
func AckSignature(hash string) string { return "ack:" + hash }

func isAck(sig string) bool { return strings.HasPrefix(sig, "ack:") }

// SignPatch validates the (status, signer) guard and returns the receipt
// patch for one signing step. An empty txSig records the off-chain
// acknowledgement; otherwise txSig must be a wallet-produced signature.
// The guard checks only state and signer; a deadline in the past does not
// block a late signature.
func SignPatch(t Terms, r Receipt, signer, txSig string) (Patch, error) {
	if txSig == "" {
		txSig = AckSignature(t.Hash)
	} else if !actionlink.ValidSignature(txSig) {
		return Patch{}, ErrBadSignature
	}
	switch r.Status {
	case StatusPendingB:
		if signer != t.Counterparty() {
			return Patch{}, ErrWrongSigner
		}
		next := StatusPendingA
		return Patch{Status: &next, TxSigB: &txSig}, nil
	case StatusPendingA:
		if signer != t.CreatedBy {
			return Patch{}, ErrWrongSigner
		}
		next := StatusSignedBoth
		return Patch{Status: &next, TxSigA: &txSig}, nil
	default:
		return Patch{}, ErrBadTransition
	}
}

// EffectiveStatus is the display status: a non-terminal agreement past its
// deadline reads as expired, but the stored status is left untouched so a
// late signature is still accepted by the guard.
func EffectiveStatus(t Terms, r Receipt, now time.Time) Status {
	if r.Status != StatusSignedBoth && t.Deadline != nil && now.After(*t.Deadline) {
		return StatusExpired
	}
	return r.Status
}
