package crypto

import (
	"crypto/rand"
	"fmt"

	chacha "golang.org/x/crypto/chacha20poly1305"
)

const SymmetricKeySize = chacha.KeySize

func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// SealSymmetric encrypts plaintext with XChaCha20-Poly1305. The random
// 24-byte nonce is prepended to the returned ciphertext.
func SealSymmetric(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha.NewX(key)
	if err != nil {
		return nil, ErrBadKey.WithDetails(err.Error())
	}
	ct, err := SealAEAD(plaintext, aead)
	if err != nil {
		return nil, ErrEncryptionFailed.Wrap(err)
	}
	return ct, nil
}

// OpenSymmetric fails with ErrIntegrity when the ciphertext was modified.
func OpenSymmetric(key, ciphertext []byte) ([]byte, error) {
	if len(key) != SymmetricKeySize {
		return nil, ErrIntegrity.WithDetails(fmt.Sprintf("symmetric key has %d bytes", len(key)))
	}
	aead, err := chacha.NewX(key)
	if err != nil {
		return nil, ErrBadKey.WithDetails(err.Error())
	}
	return OpenAEAD(ciphertext, aead)
}
