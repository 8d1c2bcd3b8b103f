// Package txcodec splits wire transactions into their signature section and
// message without interpreting instructions. Two historical encodings exist:
// the versioned envelope (message prefixed with a version byte whose high
// bit is set) and the legacy envelope. Decode tries the newer format first
// and falls back to the older one; exactly one of the two parses.
package txcodec

import (
	"encoding/base64"
	"errors"
)

var ErrMalformedTransaction = errors.New("malformed transaction")

type Kind string

const (
	KindLegacy    Kind = "legacy"
	KindVersioned Kind = "versioned"
)

const signatureLen = 64

type Transaction struct {
	Kind       Kind
	Version    byte // versioned only
	Signatures [][]byte
	Message    []byte
	Raw        []byte
}

// Decode parses a base64 transaction blob of unspecified internal version.
func Decode(blob string) (Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return Transaction{}, ErrMalformedTransaction
	}
	if tx, err := decodeEnvelope(raw, KindVersioned); err == nil {
		return tx, nil
	}
	return decodeEnvelope(raw, KindLegacy)
}

func decodeEnvelope(raw []byte, kind Kind) (Transaction, error) {
	sigs, rest, err := splitSignatures(raw)
	if err != nil {
		return Transaction{}, err
	}
	if len(rest) == 0 {
		return Transaction{}, ErrMalformedTransaction
	}
	versioned := rest[0]&0x80 != 0
	if versioned != (kind == KindVersioned) {
		return Transaction{}, ErrMalformedTransaction
	}
	tx := Transaction{Kind: kind, Signatures: sigs, Message: rest, Raw: raw}
	if versioned {
		tx.Version = rest[0] & 0x7f
		// A versioned message still needs its three header bytes.
		if len(rest) < 4 {
			return Transaction{}, ErrMalformedTransaction
		}
	} else if len(rest) < 3 {
		return Transaction{}, ErrMalformedTransaction
	}
	return tx, nil
}

func splitSignatures(raw []byte) ([][]byte, []byte, error) {
	n, consumed, err := decodeShortVec(raw)
	if err != nil {
		return nil, nil, err
	}
	rest := raw[consumed:]
	if len(rest) < n*signatureLen {
		return nil, nil, ErrMalformedTransaction
	}
	sigs := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		sigs = append(sigs, rest[i*signatureLen:(i+1)*signatureLen])
	}
	return sigs, rest[n*signatureLen:], nil
}

// decodeShortVec reads a compact-u16 length prefix.
func decodeShortVec(b []byte) (int, int, error) {
	val, shift := 0, 0
	for i := 0; i < len(b) && i < 3; i++ {
		val |= int(b[i]&0x7f) << shift
		if b[i]&0x80 == 0 {
			return val, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrMalformedTransaction
}

// AppendShortVec appends the compact-u16 encoding of n.
func AppendShortVec(dst []byte, n int) []byte {
	for {
		if n < 0x80 {
			return append(dst, byte(n))
		}
		dst = append(dst, byte(n&0x7f)|0x80)
		n >>= 7
	}
}
