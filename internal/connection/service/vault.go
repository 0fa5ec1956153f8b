package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"

	"github.com/smallbiznis/revlens/internal/connection/domain"
	"golang.org/x/crypto/hkdf"
	"gorm.io/datatypes"
)

const (
	envelopeVersion = 1
	vaultKeyInfo    = "revlens/sync-connection-credential/v1"
)

type envelope struct {
	Version    int    `json:"version"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Vault seals provider credentials with AES-256-GCM under a key derived
// from the configured secret.
type Vault struct {
	key []byte
}

// NewVault derives the sealing key. An empty secret yields a vault that
// refuses to seal or open anything.
func NewVault(secret string) (*Vault, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &Vault{}, nil
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(vaultKeyInfo)), key); err != nil {
		return nil, err
	}
	return &Vault{key: key}, nil
}

func (v *Vault) Seal(plaintext string) (datatypes.JSON, error) {
	gcm, err := v.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out, err := json.Marshal(envelope{
		Version:    envelopeVersion,
		Nonce:      base64.RawStdEncoding.EncodeToString(nonce),
		Ciphertext: base64.RawStdEncoding.EncodeToString(gcm.Seal(nil, nonce, []byte(plaintext), nil)),
	})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}

func (v *Vault) Open(sealed datatypes.JSON) (string, error) {
	gcm, err := v.aead()
	if err != nil {
		return "", err
	}

	var env envelope
	if err := json.Unmarshal(sealed, &env); err != nil || env.Version != envelopeVersion {
		return "", domain.ErrCorruptCredential
	}
	nonce, err := base64.RawStdEncoding.DecodeString(env.Nonce)
	if err != nil || len(nonce) != gcm.NonceSize() {
		return "", domain.ErrCorruptCredential
	}
	ciphertext, err := base64.RawStdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", domain.ErrCorruptCredential
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", domain.ErrCorruptCredential
	}
	return string(plaintext), nil
}

func (v *Vault) aead() (cipher.AEAD, error) {
	if len(v.key) == 0 {
		return nil, domain.ErrEncryptionKeyMissing
	}
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
