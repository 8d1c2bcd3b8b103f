package store

import (
	"testing"
	"time"

	"actionlane/pkg/agreement"
)

func TestAgreementRowColumns(t *testing.T) {
	terms, err := agreement.New(agreement.NewParams{
		Title:        "Design work",
		Participants: [2]string{"So11111111111111111111111111111111111111112", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		CreatedBy:    "So11111111111111111111111111111111111111112",
	}, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	row := agreementRow(terms, []byte(`{"id":"x"}`))
	if len(row) != 5 {
		t.Fatalf("row has %d columns, want 5", len(row))
	}
	if row[0] != terms.ID || row[3] != terms.Hash {
		t.Fatalf("row = %v", row)
	}
	if row[1] != terms.CreatedBy {
		t.Fatalf("creator column = %v, want %q", row[1], terms.CreatedBy)
	}
	if row[2] != terms.Counterparty() || row[2] == terms.CreatedBy {
		t.Fatalf("counterparty column = %v", row[2])
	}
}
