package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const rsaPEMType = "RSA PRIVATE KEY"

type rsaScheme struct {
	bits int
}

func (rsaScheme) Name() string { return SchemeRSA }

func (s rsaScheme) GenerateKeyPair() (PublicKey, PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, s.bits)
	if err != nil {
		return nil, nil, ErrBadKey.Wrap(err)
	}
	priv := &rsaPrivateKey{key: key}
	return priv.Public(), priv, nil
}

type rsaPublicKey struct {
	key *rsa.PublicKey
}

func (*rsaPublicKey) Scheme() string { return SchemeRSA }

// MaxPlaintext is the OAEP/SHA-256 message limit for the modulus size.
func (k *rsaPublicKey) MaxPlaintext() int {
	return k.key.Size() - 2*sha256.Size - 2
}

func (k *rsaPublicKey) encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) > k.MaxPlaintext() {
		return nil, ErrPlaintextTooLarge.WithDetails(fmt.Sprintf("%d > %d bytes", len(plaintext), k.MaxPlaintext()))
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, k.key, plaintext, nil)
	if err != nil {
		return nil, ErrEncryptionFailed.Wrap(err)
	}
	return ct, nil
}

func (k *rsaPublicKey) marshal() string {
	return k.key.N.String() + "/" + strconv.Itoa(k.key.E)
}

func parseRSAPublicKey(s string) (PublicKey, error) {
	nStr, eStr, ok := strings.Cut(s, "/")
	if !ok {
		return nil, ErrBadKey.WithDetails("rsa public key must be <n>/<e>")
	}
	n, ok := new(big.Int).SetString(nStr, 10)
	if !ok || n.Sign() <= 0 {
		return nil, ErrBadKey.WithDetails("invalid rsa modulus")
	}
	e, err := strconv.Atoi(eStr)
	if err != nil || e < 3 {
		return nil, ErrBadKey.WithDetails("invalid rsa exponent")
	}
	return &rsaPublicKey{key: &rsa.PublicKey{N: n, E: e}}, nil
}

type rsaPrivateKey struct {
	key *rsa.PrivateKey
}

func (*rsaPrivateKey) Scheme() string { return SchemeRSA }

func (k *rsaPrivateKey) Public() PublicKey {
	return &rsaPublicKey{key: &k.key.PublicKey}
}

func (k *rsaPrivateKey) decrypt(ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha256.New(), nil, k.key, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption.Wrap(err)
	}
	return pt, nil
}

func (k *rsaPrivateKey) marshalPEM() ([]byte, error) {
	return pem.EncodeToMemory(&pem.Block{
		Type:  rsaPEMType,
		Bytes: x509.MarshalPKCS1PrivateKey(k.key),
	}), nil
}

func parseRSAPrivateKey(der []byte) (PrivateKey, error) {
	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, ErrBadKey.Wrap(err)
	}
	return &rsaPrivateKey{key: key}, nil
}
