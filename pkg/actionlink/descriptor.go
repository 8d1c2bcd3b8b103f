package actionlink

// Descriptor is the canonical shape a resolved link executes as: one
// transaction blob, or an ordered batch submitted one at a time.
type Descriptor struct {
	Kind    string   `json:"kind"` // "single" or "batch"
	TxBlob  string   `json:"txBlob,omitempty"`
	TxBlobs []string `json:"txBlobs,omitempty"`
	Mode    string   `json:"mode,omitempty"` // batch only, "sequential"
}

const (
	KindSingle = "single"
	KindBatch  = "batch"

	ModeSequential = "sequential"
)

// Blobs returns the transaction payloads in submission order.
func (d Descriptor) Blobs() []string {
	if d.Kind == KindSingle {
		return []string{d.TxBlob}
	}
	return d.TxBlobs
}
