package agreement

import (
	"context"

	"actionlane/pkg/actionlink"
)

// SettleLink builds the settlement action link once both parties have
// signed: the payer gets a transfer link to the payee, the payee a request
// link back to themselves. Settlement stays informational until proof is
// attached.
func SettleLink(ctx context.Context, b *actionlink.Builder, t Terms, r Receipt, caller string) (actionlink.Link, error) {
	if r.Status != StatusSignedBoth {
		return actionlink.Link{}, ErrNotSettleable
	}
	if t.Amount == "" || t.Token == "" {
		return actionlink.Link{}, ErrNotSettleable
	}
	switch caller {
	case t.Payer:
		return b.Build(ctx, actionlink.ActionTransfer, t.Token, t.Payee, t.Amount, t.ID)
	case t.Payee:
		return b.Build(ctx, actionlink.ActionRequest, t.Token, t.Payee, t.Amount, t.ID)
	default:
		return actionlink.Link{}, ErrNotSettleable
	}
}

// AttachSettlement records a transaction signature as settlement proof.
// Validation here is syntactic only (signature alphabet and length); the
// on-chain check is the separate Verify step.
func AttachSettlement(t Terms, r Receipt, caller, txSig string) (Patch, error) {
	if !t.isParticipant(caller) {
		return Patch{}, ErrNotParticipant
	}
	if r.Status != StatusSignedBoth {
		return Patch{}, ErrNotSettleable
	}
	if r.Settlement != nil {
		return Patch{}, ErrAlreadySettled
	}
	if !actionlink.ValidSignature(txSig) {
		return Patch{}, ErrBadSignature
	}
	return Patch{Settlement: &SettlementInfo{Status: "settled", TxSig: txSig}}, nil
}

// Verifier is the external collaborator that checks whether a recorded
// transaction carries the agreement hash as proof data.
type Verifier interface {
	ContainsProof(ctx context.Context, txSig, hash string) (bool, error)
}

// Verify confirms that both recorded signatures prove the terms hash.
// Off-chain acknowledgements are re-derived locally; wallet signatures are
// asked of the verifier. Read-only: it never mutates the receipt.
func Verify(ctx context.Context, v Verifier, t Terms, r Receipt) (bool, error) {
	if r.TxSigA == "" || r.TxSigB == "" {
		return false, ErrMissingSignatures
	}
	for _, sig := range []string{r.TxSigB, r.TxSigA} {
		if isAck(sig) {
			if sig != AckSignature(t.Hash) {
				return false, nil
			}
			continue
		}
		ok, err := v.ContainsProof(ctx, sig, t.Hash)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
