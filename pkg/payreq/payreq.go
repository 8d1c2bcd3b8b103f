// Package payreq implements the one-shot request/pay lifecycle built on
// action links: a requested receipt at creation, a paid receipt after the
// payer executes the link.
package payreq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"actionlane/pkg/actionlink"
	"actionlane/pkg/chat"
	"actionlane/pkg/execclient"
	"actionlane/pkg/receipt"
	"actionlane/pkg/wallet"
)

const (
	StatusRequested = "requested"
	StatusPaid      = "paid"
)

var (
	// ErrAlreadyCompleted short-circuits a repeated pay; not an error the
	// user needs to act on.
	ErrAlreadyCompleted = errors.New("payment request already completed")
	ErrNotPayer         = errors.New("caller is not the payer")
)

// Request is the immutable side of a payment request; the creator owns its
// identity. State lives in the receipt.
type Request struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversationId"`
	Token          string            `json:"token"`
	Amount         string            `json:"amount"`
	Payer          string            `json:"payer,omitempty"`
	Payee          string            `json:"payee"`
	Note           string            `json:"note,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	Link           actionlink.Link   `json:"link"`
	Delivery       *chat.DeliveryAck `json:"delivery,omitempty"`
}

// Receipt tracks requested -> paid. It is mutated in place through merges,
// never replaced.
type Receipt struct {
	Status      string     `json:"status"`
	Payer       string     `json:"payer,omitempty"`
	TxSig       string     `json:"txSig,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type receiptPatch struct {
	Status      string     `json:"status,omitempty"`
	Payer       string     `json:"payer,omitempty"`
	TxSig       string     `json:"txSig,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Runner abstracts the execution client.
type Runner interface {
	Run(ctx context.Context, link actionlink.Link, sess wallet.Session) (execclient.Result, error)
}

type Service struct {
	Links     *actionlink.Builder
	Receipts  receipt.Store
	Runner    Runner
	Messenger chat.Messenger
	Log       zerolog.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func key(req Request) receipt.Key {
	return receipt.Key{ConversationID: req.ConversationID, ClientID: req.ID}
}

type CreateParams struct {
	ConversationID string
	Peer           string // chat peer to notify, usually the payer
	Payer          string // optional: empty means any participant may pay
	Payee          string
	Token          string
	Amount         string
	Note           string
}

// Create builds a request action link with the requester as beneficiary,
// records the requested receipt, and notifies the peer when a messenger is
// wired. Delivery failure does not lose the request.
func (s *Service) Create(ctx context.Context, p CreateParams) (Request, Receipt, error) {
	link, err := s.Links.Build(ctx, actionlink.ActionRequest, p.Token, p.Payee, p.Amount, p.Note)
	if err != nil {
		return Request{}, Receipt{}, err
	}
	req := Request{
		ID:             "pr_" + uuid.NewString(),
		ConversationID: p.ConversationID,
		Token:          link.Token,
		Amount:         link.Amount,
		Payer:          p.Payer,
		Payee:          p.Payee,
		Note:           p.Note,
		CreatedAt:      s.now().UTC(),
		Link:           link,
	}

	patch, err := receipt.ToFields(receiptPatch{Status: StatusRequested, Payer: p.Payer})
	if err != nil {
		return Request{}, Receipt{}, err
	}
	merged, err := s.Receipts.Apply(ctx, key(req), patch)
	if err != nil {
		return Request{}, Receipt{}, err
	}

	if s.Messenger != nil && p.Peer != "" {
		payload, _ := json.Marshal(map[string]any{"type": "payment_request", "request": req})
		ack, err := s.Messenger.Send(ctx, p.Peer, payload)
		if err != nil {
			s.Log.Warn().Err(err).Str("request_id", req.ID).Msg("payment request delivery failed")
		} else {
			req.Delivery = &ack
		}
	}

	var rcpt Receipt
	if err := receipt.FromFields(merged, &rcpt); err != nil {
		return Request{}, Receipt{}, err
	}
	return req, rcpt, nil
}

// Receipt loads the current receipt for a request. A request received from
// the peer may have no local receipt yet; that reads as requested.
func (s *Service) Receipt(ctx context.Context, req Request) (Receipt, error) {
	fields, err := s.Receipts.Get(ctx, key(req))
	if errors.Is(err, receipt.ErrNotFound) {
		return Receipt{Status: StatusRequested}, nil
	}
	if err != nil {
		return Receipt{}, err
	}
	var rcpt Receipt
	if err := receipt.FromFields(fields, &rcpt); err != nil {
		return Receipt{}, err
	}
	return rcpt, nil
}

// Pay executes the request's link as account. Only the designated payer may
// pay; when no payer is set, the first caller becomes the implicit payer
// and is recorded before execution so a racing second payer fails the
// guard. A repeated pay on a completed request is a no-op.
func (s *Service) Pay(ctx context.Context, req Request, account string, sess wallet.Session) (Receipt, error) {
	rcpt, err := s.Receipt(ctx, req)
	if err != nil {
		return Receipt{}, err
	}
	if rcpt.Status == StatusPaid {
		return rcpt, ErrAlreadyCompleted
	}

	payer := req.Payer
	if payer == "" {
		payer = rcpt.Payer
	}
	switch {
	case payer == "":
		patch, err := receipt.ToFields(receiptPatch{Payer: account})
		if err != nil {
			return rcpt, err
		}
		if _, err := s.Receipts.Apply(ctx, key(req), patch); err != nil {
			return rcpt, err
		}
	case payer != account:
		return rcpt, ErrNotPayer
	}

	res, err := s.Runner.Run(ctx, req.Link, sess)
	if err != nil {
		return rcpt, err
	}

	completed := s.now().UTC()
	patch, err := receipt.ToFields(receiptPatch{Status: StatusPaid, TxSig: res.Signature(), CompletedAt: &completed})
	if err != nil {
		return rcpt, err
	}
	merged, err := s.Receipts.Apply(ctx, key(req), patch)
	if err != nil {
		return rcpt, err
	}
	var out Receipt
	if err := receipt.FromFields(merged, &out); err != nil {
		return rcpt, err
	}
	return out, nil
}
