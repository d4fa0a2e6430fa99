// Package crypto composes the asymmetric and symmetric primitives used by the
// chat protocol. Every payload, whether a message body or a room private key
// in transit, is encrypted with a fresh symmetric key which is itself
// encrypted under a public key.
package crypto

// Engine generates keypairs with one configured scheme. Encryption and
// decryption dispatch on the key, so an engine can open blobs produced for
// any supported scheme.
type Engine struct {
	scheme Scheme
}

func NewEngine(schemeName string, rsaBits int) (*Engine, error) {
	s, err := SchemeByName(schemeName, rsaBits)
	if err != nil {
		return nil, err
	}
	return &Engine{scheme: s}, nil
}

func (e *Engine) Scheme() Scheme {
	return e.scheme
}

func (e *Engine) GenerateKeyPair() (PublicKey, PrivateKey, error) {
	return e.scheme.GenerateKeyPair()
}

// Encrypt asymmetrically encrypts a short blob.
func Encrypt(pub PublicKey, plaintext []byte) ([]byte, error) {
	return pub.encrypt(plaintext)
}

func Decrypt(priv PrivateKey, ciphertext []byte) ([]byte, error) {
	return priv.decrypt(ciphertext)
}

// HybridEncrypt seals plaintext under a fresh symmetric key and encrypts that
// key for pub.
func HybridEncrypt(plaintext []byte, pub PublicKey) (encryptedKey, ciphertext []byte, err error) {
	key, err := GenerateSymmetricKey()
	if err != nil {
		return nil, nil, ErrEncryptionFailed.Wrap(err)
	}
	ciphertext, err = SealSymmetric(key, plaintext)
	if err != nil {
		return nil, nil, err
	}
	encryptedKey, err = Encrypt(pub, key)
	if err != nil {
		return nil, nil, err
	}
	return encryptedKey, ciphertext, nil
}

// HybridDecrypt fails with ErrDecryption when encryptedKey was not produced
// for priv and with ErrIntegrity when ciphertext was modified.
func HybridDecrypt(encryptedKey, ciphertext []byte, priv PrivateKey) ([]byte, error) {
	key, err := Decrypt(priv, encryptedKey)
	if err != nil {
		return nil, err
	}
	return OpenSymmetric(key, ciphertext)
}
