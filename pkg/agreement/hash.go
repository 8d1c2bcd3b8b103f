package agreement

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// normalizedTerms is the canonical form fed to the digest: trimmed strings,
// uppercased token, sorted participant set, RFC3339 UTC deadline. Field
// order is fixed by the struct definition.
type normalizedTerms struct {
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	Amount       string   `json:"amount"`
	Token        string   `json:"token"`
	Payer        string   `json:"payer"`
	Payee        string   `json:"payee"`
	Deadline     string   `json:"deadline"`
	Participants []string `json:"participants"`
}

// TermsHash computes the deterministic digest of the normalized terms.
// It is computed once at creation; on-chain proofs must reproduce it.
func TermsHash(t Terms) string {
	parts := []string{t.Participants[0], t.Participants[1]}
	sort.Strings(parts)
	deadline := ""
	if t.Deadline != nil {
		deadline = t.Deadline.UTC().Format(time.RFC3339)
	}
	n := normalizedTerms{
		Title:        strings.TrimSpace(t.Title),
		Body:         strings.TrimSpace(t.Body),
		Amount:       strings.TrimSpace(t.Amount),
		Token:        strings.ToUpper(strings.TrimSpace(t.Token)),
		Payer:        t.Payer,
		Payee:        t.Payee,
		Deadline:     deadline,
		Participants: parts,
	}
	b, _ := json.Marshal(n)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
