package actionlink

import "github.com/mr-tron/base58"

// ValidAddress reports whether s decodes from base58 to a 32-byte public
// key.
func ValidAddress(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}

// ValidSignature reports whether s decodes from base58 to a 64-byte
// transaction signature.
func ValidSignature(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == 64
}
