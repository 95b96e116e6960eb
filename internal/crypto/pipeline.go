package crypto

import "lockit/internal/compress"

// Seal compresses data and wraps the result in an envelope. This is the
// on-disk form of every encrypted file, archive and stream frame.
func Seal(data, passphrase []byte) ([]byte, error) {
	compressed, err := compress.Compress(data)
	if err != nil {
		return nil, err
	}
	defer SecureZero(compressed)
	return Encrypt(compressed, passphrase)
}

// Open reverses Seal. Authentication is checked before any decompression.
func Open(sealed, passphrase []byte) ([]byte, error) {
	compressed, err := Decrypt(sealed, passphrase)
	if err != nil {
		return nil, err
	}
	defer SecureZero(compressed)
	return compress.Decompress(compressed)
}
