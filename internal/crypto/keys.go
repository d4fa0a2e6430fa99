package crypto

import (
	"encoding/pem"
	"strings"
)

// Scheme generates asymmetric keypairs.
type Scheme interface {
	Name() string
	GenerateKeyPair() (PublicKey, PrivateKey, error)
}

// PublicKey encrypts blobs no longer than MaxPlaintext.
type PublicKey interface {
	Scheme() string
	MaxPlaintext() int
	encrypt(plaintext []byte) ([]byte, error)
	marshal() string
}

type PrivateKey interface {
	Scheme() string
	Public() PublicKey
	decrypt(ciphertext []byte) ([]byte, error)
	marshalPEM() ([]byte, error)
}

// MarshalPublicKey renders pub in its store form: "<n>/<e>" for RSA,
// "kyber1024/<hex>" for Kyber.
func MarshalPublicKey(pub PublicKey) string {
	return pub.marshal()
}

func ParsePublicKey(s string) (PublicKey, error) {
	if rest, ok := strings.CutPrefix(s, SchemeKyber1024+"/"); ok {
		return parseKyberPublicKey(rest)
	}
	return parseRSAPublicKey(s)
}

// MarshalPrivateKey PEM-encodes priv.
func MarshalPrivateKey(priv PrivateKey) ([]byte, error) {
	return priv.marshalPEM()
}

func ParsePrivateKey(data []byte) (PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrBadKey.WithDetails("no PEM block found")
	}
	switch block.Type {
	case rsaPEMType:
		return parseRSAPrivateKey(block.Bytes)
	case kyberPEMType:
		return parseKyberPrivateKey(block.Bytes)
	default:
		return nil, ErrUnknownScheme.WithDetails(block.Type)
	}
}
