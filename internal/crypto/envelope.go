// Package crypto implements envelope encryption (spec §2 component 3):
// AES-256-GCM with a key-version field, authenticated encrypt/decrypt of
// opaque byte blobs, and key lookup by version.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

func newSHA256() hash.Hash { return sha256.New() }

// Envelope is the encrypted wire format from spec §6:
// {version, iv, authTag, ciphertext}.
type Envelope struct {
	Version    uint32 `json:"version"`
	IV         string `json:"iv"`
	AuthTag    string `json:"authTag"`
	Ciphertext string `json:"ciphertext"`
}

// KeySource resolves a raw 256-bit key for a given key version. The
// teacher has no encryption-at-rest concern of its own (bcrypt only hashes
// passwords); this derives the AES key from an operator-supplied secret
// via HKDF the way golang.org/x/crypto is meant to be used for key
// separation, rather than using the raw secret bytes directly.
type KeySource struct {
	byVersion map[uint32][]byte
}

// NewKeySource derives one AES-256 key per (version, secret) pair supplied.
// Each secret is expanded via HKDF-SHA256 so operators can rotate using any
// sufficiently random passphrase, not just a pre-sized 32-byte key.
func NewKeySource(secrets map[uint32]string) (*KeySource, error) {
	ks := &KeySource{byVersion: make(map[uint32][]byte, len(secrets))}
	for version, secret := range secrets {
		if secret == "" {
			continue
		}
		key, err := deriveKey(secret, version)
		if err != nil {
			return nil, fmt.Errorf("deriving key for version %d: %w", version, err)
		}
		ks.byVersion[version] = key
	}
	return ks, nil
}

func deriveKey(secret string, version uint32) ([]byte, error) {
	salt := []byte(fmt.Sprintf("novaos-envelope-v%d", version))
	hk := hkdf.New(newSHA256, []byte(secret), salt, []byte("novaos-aes-256-gcm"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Lookup returns the derived key for a version, or false if unknown.
func (ks *KeySource) Lookup(version uint32) ([]byte, bool) {
	k, ok := ks.byVersion[version]
	return k, ok
}

// Service performs authenticated encrypt/decrypt of opaque byte blobs.
type Service struct {
	keys           *KeySource
	currentVersion uint32
}

func NewService(keys *KeySource, currentVersion uint32) *Service {
	return &Service{keys: keys, currentVersion: currentVersion}
}

// Encrypt seals plaintext under the current key version.
func (s *Service) Encrypt(plaintext []byte) (*Envelope, error) {
	key, ok := s.keys.Lookup(s.currentVersion)
	if !ok {
		return nil, fmt.Errorf("crypto: no key for current version %d", s.currentVersion)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	// Go's GCM appends the 16-byte auth tag to the ciphertext; split it out
	// so the wire envelope carries them as distinct fields per spec §6.
	tagStart := len(sealed) - gcm.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return &Envelope{
		Version:    s.currentVersion,
		IV:         base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(tag),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

// Decrypt opens an Envelope using the key for its recorded version.
func (s *Service) Decrypt(env *Envelope) ([]byte, error) {
	key, ok := s.keys.Lookup(env.Version)
	if !ok {
		return nil, fmt.Errorf("crypto: no key for version %d", env.Version)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}

	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding auth tag: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	sealed := append(ciphertext, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decryption failed: %w", err)
	}
	return plaintext, nil
}

// EncryptJSON is a convenience wrapper that marshals v then encrypts it.
func (s *Service) EncryptJSON(v any) (*Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("crypto: marshaling: %w", err)
	}
	return s.Encrypt(b)
}

// DecryptJSON decrypts env and unmarshals into v.
func (s *Service) DecryptJSON(env *Envelope, v any) error {
	b, err := s.Decrypt(env)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
