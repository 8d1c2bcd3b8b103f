package agreement

import (
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"

	"actionlane/pkg/txcodec"
)

const memoProgramID = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"

// PrepareSignTx builds the unsigned legacy transaction a wallet-backed
// signing step executes: a single memo instruction carrying the terms hash,
// fee-paid by the signer. The blockhash slot is zeroed; the wallet fills it
// at signing time.
func PrepareSignTx(t Terms, signer string) (string, error) {
	signerKey, err := base58.Decode(signer)
	if err != nil || len(signerKey) != 32 {
		return "", fmt.Errorf("invalid signer address %q", signer)
	}
	programKey, err := base58.Decode(memoProgramID)
	if err != nil {
		return "", err
	}
	data := []byte(t.Hash)

	var msg []byte
	msg = append(msg, 1, 0, 1) // one signer, no read-only signed, one read-only unsigned
	msg = txcodec.AppendShortVec(msg, 2)
	msg = append(msg, signerKey...)
	msg = append(msg, programKey...)
	msg = append(msg, make([]byte, 32)...) // blockhash placeholder
	msg = txcodec.AppendShortVec(msg, 1)
	msg = append(msg, 1) // program id index
	msg = txcodec.AppendShortVec(msg, 0)
	msg = txcodec.AppendShortVec(msg, len(data))
	msg = append(msg, data...)

	var raw []byte
	raw = txcodec.AppendShortVec(raw, 1)
	raw = append(raw, make([]byte, 64)...) // signature placeholder
	raw = append(raw, msg...)
	return base64.StdEncoding.EncodeToString(raw), nil
}
