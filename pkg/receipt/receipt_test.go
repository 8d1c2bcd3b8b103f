package receipt

import (
	"context"
	"reflect"
	"testing"
)

func TestMergeDisjointCommutative(t *testing.T) {
	a := Fields{"txSigB": "sigB"}
	b := Fields{"settlement": map[string]any{"status": "settled", "txSig": "sigS"}}
	base := Fields{"status": "signed_both", "hash": "h1"}

	ab := Merge(Merge(base, a), b)
	ba := Merge(Merge(base, b), a)
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("disjoint merges not commutative:\n%v\n%v", ab, ba)
	}
}

func TestMergeIdempotent(t *testing.T) {
	base := Fields{"status": "requested"}
	patch := Fields{"status": "paid", "txSig": "abc"}
	once := Merge(base, patch)
	twice := Merge(once, patch)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("merge not idempotent:\n%v\n%v", once, twice)
	}
}

func TestMergeStatusForwardOnly(t *testing.T) {
	got := Merge(Fields{"status": "signed_both"}, Fields{"status": "pending_a"})
	if got["status"] != "signed_both" {
		t.Fatalf("status regressed to %v", got["status"])
	}
	got = Merge(Fields{"status": "pending_b"}, Fields{"status": "pending_a"})
	if got["status"] != "pending_a" {
		t.Fatalf("status = %v, want pending_a", got["status"])
	}
	got = Merge(Fields{"status": "paid"}, Fields{"status": "requested"})
	if got["status"] != "paid" {
		t.Fatalf("status = %v, want paid", got["status"])
	}
}

func TestMergeOverlapLastWriteWins(t *testing.T) {
	got := Merge(Fields{"note": "old", "txSig": "s1"}, Fields{"note": "new"})
	if got["note"] != "new" || got["txSig"] != "s1" {
		t.Fatalf("merge = %v", got)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := Fields{"status": "requested"}
	patch := Fields{"txSig": "s"}
	_ = Merge(base, patch)
	if _, ok := base["txSig"]; ok {
		t.Fatal("Merge mutated base")
	}
}

func TestMemStoreApply(t *testing.T) {
	st := NewMemStore()
	ctx := context.Background()
	key := Key{ConversationID: "conv1", ClientID: "pr_1"}

	if _, err := st.Get(ctx, key); err != ErrNotFound {
		t.Fatalf("Get() on empty store error = %v, want ErrNotFound", err)
	}

	if _, err := st.Apply(ctx, key, Fields{"status": "requested", "note": "lunch"}); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	merged, err := st.Apply(ctx, key, Fields{"status": "paid", "txSig": "sig1"})
	if err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if merged["note"] != "lunch" {
		t.Fatal("earlier field lost by later merge")
	}

	got, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got["status"] != "paid" || got["txSig"] != "sig1" || got["note"] != "lunch" {
		t.Fatalf("Get() = %v", got)
	}
}

func TestToFieldsOmitsUnset(t *testing.T) {
	patch := struct {
		Status string `json:"status,omitempty"`
		TxSig  string `json:"txSig,omitempty"`
	}{Status: "paid"}
	f, err := ToFields(patch)
	if err != nil {
		t.Fatalf("ToFields() error: %v", err)
	}
	if _, ok := f["txSig"]; ok {
		t.Fatal("unset field present in patch")
	}
	if f["status"] != "paid" {
		t.Fatalf("fields = %v", f)
	}
}
