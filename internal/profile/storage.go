package profile

import (
	"os"
	"path/filepath"

	"kvchat/internal/utils"
)

const (
	profileFile   = "profile.json"
	roomKeysDir   = "private_keys"
	pendingDir    = "pending"
	keyFileSuffix = ".pem"
)

// UserDir is the per-user directory holding keys and the history cache.
func UserDir(dataDir, username string) (string, error) {
	base, err := utils.ExpandHome(dataDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, username), nil
}

func getProfilePath(dir string) (string, error) {
	profilePath := filepath.Join(dir, profileFile)
	_, err := os.Stat(profilePath)
	if os.IsNotExist(err) {
		return "", ErrProfileNotFound
	}
	return profilePath, err
}

func createProfileDirs(dir string) (string, error) {
	for _, sub := range []string{roomKeysDir, pendingDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, profileFile), nil
}

func keyPath(dir, kind, room string) string {
	return filepath.Join(dir, kind, room+keyFileSuffix)
}

// writeFileAtomic replaces path so a crash never leaves a half-written key.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
