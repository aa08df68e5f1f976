package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters: interactive-login strength, fine for a once-per-start
// key derivation.
const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	saltSize     = 16
	fileMode     = 0o600
	storeVersion = 1
)

// FileStore is a Store persisted as a single AES-256-GCM encrypted JSON file.
// The encryption key is derived from a device secret via scrypt.
//
// All methods are safe for concurrent use; every mutation rewrites the file
// atomically (write-temp-then-rename).
type FileStore struct {
	path string
	key  []byte
	salt []byte

	mu      sync.RWMutex
	secrets map[string]string
}

var _ Store = (*FileStore)(nil)

// fileEnvelope is the on-disk layout: everything but the payload is plaintext
// metadata needed to re-derive the key.
type fileEnvelope struct {
	Version int    `json:"version"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Payload []byte `json:"payload"`
}

// OpenFile opens (or creates) the encrypted store at path, deriving the
// encryption key from deviceSecret. An existing file is decrypted eagerly so
// a wrong secret fails here, not on first Get.
func OpenFile(path, deviceSecret string) (*FileStore, error) {
	if deviceSecret == "" {
		return nil, errors.New("credential: deviceSecret must not be empty")
	}

	s := &FileStore{path: path, secrets: make(map[string]string)}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, s.salt); err != nil {
			return nil, fmt.Errorf("credential: generate salt: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("credential: read store: %w", err)
	default:
		var env fileEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("credential: parse store: %w", err)
		}
		s.salt = env.Salt
		key, err := deriveKey(deviceSecret, s.salt)
		if err != nil {
			return nil, err
		}
		s.key = key
		plain, err := decrypt(key, env.Nonce, env.Payload)
		if err != nil {
			return nil, fmt.Errorf("credential: decrypt store: %w", err)
		}
		if err := json.Unmarshal(plain, &s.secrets); err != nil {
			return nil, fmt.Errorf("credential: parse secrets: %w", err)
		}
	}

	if s.key == nil {
		key, err := deriveKey(deviceSecret, s.salt)
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	return s, nil
}

// Get implements Store.
func (s *FileStore) Get(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.secrets[name]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Has implements Store.
func (s *FileStore) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.secrets[name]
	return ok
}

// Set implements Store. The whole file is re-encrypted on every write; the
// store holds a handful of API keys, so this is cheap.
func (s *FileStore) Set(name, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[name] = secret
	return s.flushLocked()
}

// flushLocked writes the encrypted store atomically. Must be called with
// s.mu held for writing.
func (s *FileStore) flushLocked() error {
	plain, err := json.Marshal(s.secrets)
	if err != nil {
		return fmt.Errorf("credential: encode secrets: %w", err)
	}
	nonce, payload, err := encrypt(s.key, plain)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(fileEnvelope{
		Version: storeVersion,
		Salt:    s.salt,
		Nonce:   nonce,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("credential: encode store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("credential: create store dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, fileMode); err != nil {
		return fmt.Errorf("credential: write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("credential: replace store: %w", err)
	}
	return nil
}

func deriveKey(secret string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, fmt.Errorf("credential: derive key: %w", err)
	}
	return key, nil
}

func encrypt(key, plain []byte) (nonce, payload []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("credential: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("credential: gcm: %w", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("credential: nonce: %w", err)
	}
	return nonce, gcm.Seal(nil, nonce, plain, nil), nil
}

func decrypt(key, nonce, payload []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credential: gcm: %w", err)
	}
	return gcm.Open(nil, nonce, payload, nil)
}
