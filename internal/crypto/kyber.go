package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/cloudflare/circl/kem"
	"golang.org/x/crypto/hkdf"
)

const (
	kyberPEMType = "KYBER1024 PRIVATE KEY"

	// kyberMaxPlaintext bounds the KEM-DEM wrap to short blobs, matching the
	// asymmetric contract; longer payloads go through HybridEncrypt.
	kyberMaxPlaintext = 256
)

var kyberDEMInfo = []byte("kvchat kyber1024 dem v1")

type kyber1024Scheme struct{}

func (kyber1024Scheme) Name() string { return SchemeKyber1024 }

func (kyber1024Scheme) GenerateKeyPair() (PublicKey, PrivateKey, error) {
	pk, sk, err := kyberScheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, ErrBadKey.Wrap(err)
	}
	return &kyberPublicKey{key: pk}, &kyberPrivateKey{key: sk}, nil
}

func kyberDEMKey(sharedSecret []byte) ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, sharedSecret, nil, kyberDEMInfo), key); err != nil {
		return nil, err
	}
	return key, nil
}

type kyberPublicKey struct {
	key kem.PublicKey
}

func (*kyberPublicKey) Scheme() string { return SchemeKyber1024 }

func (*kyberPublicKey) MaxPlaintext() int { return kyberMaxPlaintext }

// encrypt produces kemCiphertext || SealSymmetric(hkdf(sharedSecret), plaintext).
func (k *kyberPublicKey) encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) > kyberMaxPlaintext {
		return nil, ErrPlaintextTooLarge.WithDetails(fmt.Sprintf("%d > %d bytes", len(plaintext), kyberMaxPlaintext))
	}
	kemCT, ss, err := kyberScheme.Encapsulate(k.key)
	if err != nil {
		return nil, ErrEncryptionFailed.Wrap(err)
	}
	demKey, err := kyberDEMKey(ss)
	if err != nil {
		return nil, ErrEncryptionFailed.Wrap(err)
	}
	sealed, err := SealSymmetric(demKey, plaintext)
	if err != nil {
		return nil, err
	}
	return append(kemCT, sealed...), nil
}

func (k *kyberPublicKey) marshal() string {
	raw, _ := k.key.MarshalBinary()
	return SchemeKyber1024 + "/" + hex.EncodeToString(raw)
}

func parseKyberPublicKey(hexKey string) (PublicKey, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrBadKey.Wrap(err)
	}
	pk, err := kyberScheme.UnmarshalBinaryPublicKey(raw)
	if err != nil {
		return nil, ErrBadKey.Wrap(err)
	}
	return &kyberPublicKey{key: pk}, nil
}

type kyberPrivateKey struct {
	key kem.PrivateKey
}

func (*kyberPrivateKey) Scheme() string { return SchemeKyber1024 }

func (k *kyberPrivateKey) Public() PublicKey {
	return &kyberPublicKey{key: k.key.Public()}
}

// decrypt relies on the DEM tag: Kyber decapsulation with the wrong key
// yields an unrelated secret rather than an error.
func (k *kyberPrivateKey) decrypt(ciphertext []byte) ([]byte, error) {
	ctSize := kyberScheme.CiphertextSize()
	if len(ciphertext) < ctSize {
		return nil, ErrDecryption.WithDetails("ciphertext shorter than kem encapsulation")
	}
	ss, err := kyberScheme.Decapsulate(k.key, ciphertext[:ctSize])
	if err != nil {
		return nil, ErrDecryption.Wrap(err)
	}
	demKey, err := kyberDEMKey(ss)
	if err != nil {
		return nil, ErrDecryption.Wrap(err)
	}
	pt, err := OpenSymmetric(demKey, ciphertext[ctSize:])
	if err != nil {
		return nil, ErrDecryption.Wrap(err)
	}
	return pt, nil
}

func (k *kyberPrivateKey) marshalPEM() ([]byte, error) {
	raw, err := k.key.MarshalBinary()
	if err != nil {
		return nil, ErrBadKey.Wrap(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: kyberPEMType, Bytes: raw}), nil
}

func parseKyberPrivateKey(raw []byte) (PrivateKey, error) {
	sk, err := kyberScheme.UnmarshalBinaryPrivateKey(raw)
	if err != nil {
		return nil, ErrBadKey.Wrap(err)
	}
	return &kyberPrivateKey{key: sk}, nil
}
