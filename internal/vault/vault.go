// Package vault implements the Secret Vault (spec §4.1): an encrypted,
// file-backed store of named credentials. Every value crosses the package
// boundary as plaintext only through Get; the file on disk never holds
// anything but ciphertext, a nonce, and a PBKDF2 salt.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"go.uber.org/zap"

	"github.com/radiantcore/corerun/internal/errs"
)

// Format version stamped into the vault file. A mismatch is fatal: the vault
// refuses to guess at how to interpret an unknown layout.
const vaultVersion = "1.0"

const (
	minPasswordLength = 12
	pbkdf2Iterations  = 100_000
	saltLength        = 32
	keyLength         = 32
	dirMode           = 0o700
	fileMode          = 0o600
)

// Sentinel errors classify vault failures per spec §7 (kind=Security).
var (
	ErrInvalidPassword   = errors.New("vault: invalid master password")
	ErrVaultCorruption   = errors.New("vault: corrupted vault file")
	ErrInvalidVersion    = errors.New("vault: unsupported vault file version")
	ErrSecretNotFound    = errors.New("vault: secret not found")
	ErrEncryption        = errors.New("vault: encryption operation failed")
	ErrSecretExists      = errors.New("vault: secret already exists")
)

// Entry is the on-disk representation of one secret. Ciphertext and nonce are
// base64-encoded so the whole vault file is valid UTF-8 JSON.
type entry struct {
	EncryptedValue string    `json:"encrypted_value"`
	Nonce          string    `json:"nonce"`
	Version        uint32    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// file is the on-disk vault layout (spec §6: "Secrets vault file (JSON)").
type file struct {
	Version string           `json:"version"`
	Salt    string           `json:"salt"`
	Secrets map[string]entry `json:"secrets"`
}

// SecretEntry is the public, read-only view of a stored secret's metadata
// (no plaintext, no ciphertext).
type SecretEntry struct {
	Name      string
	Version   uint32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Vault is an authenticated, symmetrically encrypted credential store.
//
// A Vault holds its derived key in memory for the lifetime of the handle.
// Close zeroes that key; callers that hold a Vault across goroutines must
// not call Close until every user is done.
type Vault struct {
	mu   sync.Mutex
	path string
	key  []byte
	log  *zap.SugaredLogger
}

// Option configures a Vault at construction time.
type Option func(*Vault)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(v *Vault) { v.log = l }
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidPassword, minPasswordLength)
	}
	var hasLetter, hasDigitOrSymbol bool
	for _, r := range password {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		case (r >= '0' && r <= '9') || strings.ContainsRune("!@#$%^&*", r):
			hasDigitOrSymbol = true
		}
	}
	if !hasLetter || !hasDigitOrSymbol {
		return fmt.Errorf("%w: must contain a letter and a digit or symbol", ErrInvalidPassword)
	}
	return nil
}

func deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keyLength, sha256.New)
}

// Open creates or opens the vault at path, deriving the encryption key from
// masterPassword and the salt recorded in the file (generating one on first
// use). Directory permissions are tightened to 0700 and the file to 0600
// where the OS honors Unix permission bits.
func Open(path string, masterPassword string, opts ...Option) (*Vault, error) {
	if err := validatePassword(masterPassword); err != nil {
		return nil, errs.New(errs.KindSecurity, "vault.Open", err)
	}

	v := &Vault{path: path, log: zap.NewNop().Sugar()}
	for _, o := range opts {
		o(v)
	}

	if err := v.ensureDir(); err != nil {
		return nil, errs.New(errs.KindSecurity, "vault.Open", err)
	}

	f, err := loadFile(path)
	if err != nil {
		return nil, errs.New(errs.KindSecurity, "vault.Open", err)
	}

	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return nil, errs.New(errs.KindSecurity, "vault.Open", fmt.Errorf("%w: invalid salt: %v", ErrVaultCorruption, err))
	}

	v.key = deriveKey(masterPassword, salt)

	if err := saveFile(path, f); err != nil {
		return nil, errs.New(errs.KindSecurity, "vault.Open", err)
	}

	v.log.Infow("vault opened", "path", path)
	return v, nil
}

// Close zeroes the derived key held in memory. The Vault must not be used
// afterward.
func (v *Vault) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.key {
		v.key[i] = 0
	}
	v.key = nil
}

func (v *Vault) ensureDir() error {
	dir := filepath.Dir(v.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create vault dir: %w", err)
	}
	_ = os.Chmod(dir, dirMode)
	return nil
}

func loadFile(path string) (*file, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		salt := make([]byte, saltLength)
		if _, rerr := rand.Read(salt); rerr != nil {
			return nil, fmt.Errorf("generate salt: %w", rerr)
		}
		return &file{
			Version: vaultVersion,
			Salt:    base64.StdEncoding.EncodeToString(salt),
			Secrets: map[string]entry{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vault: %w", err)
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVaultCorruption, err)
	}
	if f.Version != vaultVersion {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrInvalidVersion, vaultVersion, f.Version)
	}
	if f.Secrets == nil {
		f.Secrets = map[string]entry{}
	}
	return &f, nil
}

func saveFile(path string, f *file) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal vault: %w", err)
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	_ = os.Chmod(path, fileMode)
	return nil
}

func (v *Vault) encrypt(plaintext string) (cipherB64, nonceB64 string, err error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), base64.StdEncoding.EncodeToString(nonce), nil
}

func (v *Vault) decrypt(cipherB64, nonceB64 string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(cipherB64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid ciphertext encoding", ErrEncryption)
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid nonce encoding", ErrEncryption)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		// Never disclose whether the password or the data was wrong.
		return "", ErrEncryption
	}
	return string(plaintext), nil
}

// Create stores a new secret, failing with ErrSecretExists if name is
// already present. Use Store or Rotate to update an existing secret.
func (v *Vault) Create(name, value string) error {
	v.mu.Lock()
	f, err := loadFile(v.path)
	if err != nil {
		v.mu.Unlock()
		return errs.New(errs.KindSecurity, "vault.Create", err)
	}
	_, exists := f.Secrets[name]
	v.mu.Unlock()
	if exists {
		return errs.New(errs.KindSecurity, "vault.Create", fmt.Errorf("%w: %s", ErrSecretExists, name))
	}
	return v.Store(name, value)
}

// Store upserts a named secret, bumping its version when it already exists
// and preserving the original created_at timestamp.
func (v *Vault) Store(name, value string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := loadFile(v.path)
	if err != nil {
		return errs.New(errs.KindSecurity, "vault.Store", err)
	}

	cipherB64, nonceB64, err := v.encrypt(value)
	if err != nil {
		return errs.New(errs.KindSecurity, "vault.Store", err)
	}

	now := time.Now().UTC()
	version := uint32(1)
	createdAt := now
	if existing, ok := f.Secrets[name]; ok {
		version = existing.Version + 1
		createdAt = existing.CreatedAt
	}

	f.Secrets[name] = entry{
		EncryptedValue: cipherB64,
		Nonce:          nonceB64,
		Version:        version,
		CreatedAt:      createdAt,
		UpdatedAt:      now,
	}

	if err := saveFile(v.path, f); err != nil {
		return errs.New(errs.KindSecurity, "vault.Store", err)
	}
	v.log.Infow("secret stored", "name", name, "version", version)
	return nil
}

// Get returns the plaintext of the named secret.
func (v *Vault) Get(name string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := loadFile(v.path)
	if err != nil {
		return "", errs.New(errs.KindSecurity, "vault.Get", err)
	}
	e, ok := f.Secrets[name]
	if !ok {
		return "", errs.New(errs.KindSecurity, "vault.Get", fmt.Errorf("%w: %s", ErrSecretNotFound, name))
	}
	plaintext, err := v.decrypt(e.EncryptedValue, e.Nonce)
	if err != nil {
		return "", errs.New(errs.KindSecurity, "vault.Get", err)
	}
	return plaintext, nil
}

// List returns the names of every stored secret. Values are never returned.
func (v *Vault) List() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := loadFile(v.path)
	if err != nil {
		return nil, errs.New(errs.KindSecurity, "vault.List", err)
	}
	names := make([]string, 0, len(f.Secrets))
	for name := range f.Secrets {
		names = append(names, name)
	}
	return names, nil
}

// Rotate requires the secret to already exist and stores newValue, which
// bumps its version by one (equivalent to Store on an existing name).
func (v *Vault) Rotate(name, newValue string) error {
	if _, err := v.Get(name); err != nil {
		return err
	}
	return v.Store(name, newValue)
}

// Remove deletes a secret. It fails with ErrSecretNotFound if absent.
func (v *Vault) Remove(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	f, err := loadFile(v.path)
	if err != nil {
		return errs.New(errs.KindSecurity, "vault.Remove", err)
	}
	if _, ok := f.Secrets[name]; !ok {
		return errs.New(errs.KindSecurity, "vault.Remove", fmt.Errorf("%w: %s", ErrSecretNotFound, name))
	}
	delete(f.Secrets, name)
	if err := saveFile(v.path, f); err != nil {
		return errs.New(errs.KindSecurity, "vault.Remove", err)
	}
	return nil
}
