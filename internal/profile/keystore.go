package profile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"kvchat/internal/crypto"
	"kvchat/internal/utils"
)

// KeyStore caches private keys in memory and persists them as PEM files,
// sealed with the profile passphrase key when there is one.
type KeyStore struct {
	dir     string
	profile *Profile
	passKey []byte

	mu       sync.RWMutex
	roomKeys map[string]crypto.PrivateKey
	pending  map[string]crypto.PrivateKey
}

func newKeyStore(dir string, prof *Profile, passKey []byte) *KeyStore {
	return &KeyStore{
		dir:      dir,
		profile:  prof,
		passKey:  passKey,
		roomKeys: make(map[string]crypto.PrivateKey),
		pending:  make(map[string]crypto.PrivateKey),
	}
}

func (k *KeyStore) Username() string {
	return k.profile.Username
}

// Dir is the user's data directory.
func (k *KeyStore) Dir() string {
	return k.dir
}

// RoomKey returns the private key of room, or ErrKeyNotFound.
func (k *KeyStore) RoomKey(room string) (crypto.PrivateKey, error) {
	return k.load(roomKeysDir, room, k.roomKeys)
}

func (k *KeyStore) HasRoomKey(room string) bool {
	_, err := k.RoomKey(room)
	return err == nil
}

func (k *KeyStore) SaveRoomKey(room string, priv crypto.PrivateKey) error {
	return k.save(roomKeysDir, room, priv, k.roomKeys)
}

// PendingKey returns the personal key generated for an unanswered join
// request to room.
func (k *KeyStore) PendingKey(room string) (crypto.PrivateKey, error) {
	return k.load(pendingDir, room, k.pending)
}

func (k *KeyStore) SavePendingKey(room string, priv crypto.PrivateKey) error {
	return k.save(pendingDir, room, priv, k.pending)
}

// DropPendingKey forgets the personal key once the room key was received.
func (k *KeyStore) DropPendingKey(room string) error {
	if err := utils.ValidateName("room name", room); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.pending, room)
	err := os.Remove(keyPath(k.dir, pendingDir, room))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Rooms lists the rooms whose private key is held locally.
func (k *KeyStore) Rooms() ([]string, error) {
	return k.list(roomKeysDir)
}

// PendingRooms lists rooms with a join request awaiting approval.
func (k *KeyStore) PendingRooms() ([]string, error) {
	return k.list(pendingDir)
}

func (k *KeyStore) load(kind, room string, cache map[string]crypto.PrivateKey) (crypto.PrivateKey, error) {
	if err := utils.ValidateName("room name", room); err != nil {
		return nil, err
	}
	k.mu.RLock()
	priv, ok := cache[room]
	k.mu.RUnlock()
	if ok {
		return priv, nil
	}

	path := keyPath(k.dir, kind, room)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrKeyNotFound.WithDetails(kind + "/" + room)
	}
	if err != nil {
		return nil, err
	}
	if k.passKey != nil {
		data, err = crypto.OpenSymmetric(k.passKey, data)
		if err != nil {
			return nil, ErrCorruptKey.WithDetails(path).Wrap(err)
		}
	}
	priv, err = crypto.ParsePrivateKey(data)
	if err != nil {
		return nil, ErrCorruptKey.WithDetails(path).Wrap(err)
	}

	k.mu.Lock()
	cache[room] = priv
	k.mu.Unlock()
	return priv, nil
}

func (k *KeyStore) save(kind, room string, priv crypto.PrivateKey, cache map[string]crypto.PrivateKey) error {
	if err := utils.ValidateName("room name", room); err != nil {
		return err
	}
	data, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return err
	}
	if k.passKey != nil {
		data, err = crypto.SealSymmetric(k.passKey, data)
		if err != nil {
			return err
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if err := writeFileAtomic(keyPath(k.dir, kind, room), data); err != nil {
		return err
	}
	cache[room] = priv
	return nil
}

func (k *KeyStore) list(kind string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(k.dir, kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rooms []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, keyFileSuffix) {
			continue
		}
		rooms = append(rooms, strings.TrimSuffix(name, keyFileSuffix))
	}
	sort.Strings(rooms)
	return rooms, nil
}
