package crypto

import (
	"crypto/subtle"
)

// SecureZero overwrites b with zeros. The constant-time copy keeps the
// compiler from eliding the write. Go's GC may still hold earlier copies, so
// this narrows the exposure window rather than closing it.
func SecureZero(b []byte) {
	if len(b) == 0 {
		return
	}
	zeros := make([]byte, len(b))
	subtle.ConstantTimeCopy(1, b, zeros)
}

// SecureZeroMultiple zeros each slice in turn.
func SecureZeroMultiple(slices ...[]byte) {
	for _, s := range slices {
		SecureZero(s)
	}
}
