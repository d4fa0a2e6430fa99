package crypto

import (
	"crypto/cipher"
	"crypto/rand"
)

// SealAEAD encrypts data under a fresh random nonce and returns nonce||ct.
func SealAEAD(data []byte, aead cipher.AEAD) ([]byte, error) {
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(data)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nonce, nonce, data, nil)
	return ct, nil
}

// OpenAEAD reverses SealAEAD.
func OpenAEAD(encData []byte, aead cipher.AEAD) ([]byte, error) {
	if len(encData) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrIntegrity.WithDetails("ciphertext too short")
	}
	nonce := encData[:aead.NonceSize()]
	pt, err := aead.Open(nil, nonce, encData[aead.NonceSize():], nil)
	if err != nil {
		return nil, ErrIntegrity.Wrap(err)
	}
	return pt, nil
}
