package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber1024"
)

const (
	SchemeRSA       = "rsa"
	SchemeKyber1024 = "kyber1024"

	DefaultRSABits = 2048
	MinRSABits     = 1024
)

var kyberScheme = kyber1024.Scheme()

// SchemeByName returns the asymmetric scheme registered under name. rsaBits
// is only consulted for SchemeRSA.
func SchemeByName(name string, rsaBits int) (Scheme, error) {
	switch name {
	case SchemeRSA, "":
		if rsaBits == 0 {
			rsaBits = DefaultRSABits
		}
		if rsaBits < MinRSABits {
			return nil, ErrBadKey.WithDetails(fmt.Sprintf("rsa key size %d below minimum %d", rsaBits, MinRSABits))
		}
		return rsaScheme{bits: rsaBits}, nil
	case SchemeKyber1024:
		return kyber1024Scheme{}, nil
	default:
		return nil, ErrUnknownScheme.WithDetails(name)
	}
}
