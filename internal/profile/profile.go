// Package profile keeps a user's local secrets: the private keys of rooms the
// user belongs to and the personal keys of join requests still in flight.
// Nothing here ever reaches the shared store.
package profile

import (
	"crypto/hmac"
	"crypto/rand"
	"encoding/json"
	"errors"
	"os"
	"time"

	"golang.org/x/crypto/argon2"

	"kvchat/internal/utils"
)

// Profile is the on-disk descriptor of a local user. When the user chose a
// passphrase, key files are sealed with a key derived from it and the
// checksum lets a wrong passphrase be rejected up front.
type Profile struct {
	Username         string `json:"username"`
	PasswordSalt     []byte `json:"password_salt,omitempty"`
	PasswordChecksum []byte `json:"password_checksum,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

func (p *Profile) Protected() bool {
	return len(p.PasswordChecksum) > 0
}

func deriveKeys(pass string, salt []byte) (passKey, checksum []byte) {
	passKey = argon2.IDKey([]byte(pass), salt, 1, 64*1024, 4, 32)
	checksum = argon2.IDKey([]byte(pass), salt, 3, 8*1024, 2, 32)
	return passKey, checksum
}

// GenerateProfile creates the user directory and writes a new profile.
// An empty pass leaves key files unsealed.
func GenerateProfile(dir, username, pass string) (*Profile, []byte, error) {
	prof := &Profile{Username: username, CreatedAt: time.Now().UnixMicro()}
	var passKey []byte
	if pass != "" {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
		var checksum []byte
		passKey, checksum = deriveKeys(pass, salt)
		prof.PasswordSalt = salt
		prof.PasswordChecksum = checksum
	}

	profilePath, err := createProfileDirs(dir)
	if err != nil {
		return nil, nil, err
	}
	data, err := json.MarshalIndent(prof, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	if err := writeFileAtomic(profilePath, data); err != nil {
		return nil, nil, err
	}
	return prof, passKey, nil
}

// LoadProfile reads the profile in dir and checks pass against it.
func LoadProfile(dir, pass string) (*Profile, []byte, error) {
	profilePath, err := getProfilePath(dir)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(profilePath)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	var prof Profile
	if err := json.NewDecoder(file).Decode(&prof); err != nil {
		return nil, nil, ErrCorruptKey.WithDetails(profilePath).Wrap(err)
	}

	if !prof.Protected() {
		if pass != "" {
			return nil, nil, ErrInvalidPassword.WithDetails("profile has no passphrase")
		}
		return &prof, nil, nil
	}
	passKey, check := deriveKeys(pass, prof.PasswordSalt)
	if !hmac.Equal(check, prof.PasswordChecksum) {
		return nil, nil, ErrInvalidPassword
	}
	return &prof, passKey, nil
}

// Open loads the user's profile under dataDir, creating it on first use, and
// returns the key store bound to it.
func Open(dataDir, username, pass string) (*KeyStore, error) {
	if err := utils.ValidateName("username", username); err != nil {
		return nil, err
	}
	dir, err := UserDir(dataDir, username)
	if err != nil {
		return nil, err
	}

	prof, passKey, err := LoadProfile(dir, pass)
	if errors.Is(err, ErrProfileNotFound) {
		prof, passKey, err = GenerateProfile(dir, username, pass)
	}
	if err != nil {
		return nil, err
	}
	if prof.Username != username {
		return nil, ErrCorruptKey.WithDetails("profile belongs to " + prof.Username)
	}
	if _, err := createProfileDirs(dir); err != nil {
		return nil, err
	}
	return newKeyStore(dir, prof, passKey), nil
}
