package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/thicket/pkg/domain"
	"github.com/aretw0/thicket/pkg/ports"
)

// EnvelopeKey is the meta key holding the sealed payload of an encrypted snapshot.
const EnvelopeKey = "__encrypted__"

// ErrNotEncrypted is returned when a stored snapshot carries no envelope.
var ErrNotEncrypted = errors.New("snapshot is missing encrypted data envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey encrypts new data. Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt,
	// so keys can be rotated without rewriting every tree first.
	FallbackKeys [][]byte
}

// payload is the sealed part of a snapshot.
type payload struct {
	Nodes []domain.NodeRecord `json:"nodes"`
	Meta  map[string]string   `json:"meta,omitempty"`
}

type encryptionMiddleware struct {
	next   ports.TreeStore
	config EncryptionConfig
}

// NewEncryptionMiddleware seals node records and meta with AES-GCM.
// Identity, hierarchy and order stay in clear so the wrapped store can
// still list trees and resolve children.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("active key must be 32 bytes (AES-256), got %d", len(config.ActiveKey))
	}
	return func(next ports.TreeStore) ports.TreeStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, snap *domain.TreeSnapshot) error {
	plainText, err := json.Marshal(payload{Nodes: snap.Nodes, Meta: snap.Meta})
	if err != nil {
		return fmt.Errorf("failed to marshal tree %s: %w", snap.ID, err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt tree %s: %w", snap.ID, err)
	}

	envelope := *snap
	envelope.Order = append([]string(nil), snap.Order...)
	envelope.Nodes = nil
	envelope.Meta = map[string]string{EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext)}
	return m.next.Save(ctx, &envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, treeID string) (*domain.TreeSnapshot, error) {
	envelope, err := m.next.Load(ctx, treeID)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) Children(ctx context.Context, parentID string) ([]*domain.TreeSnapshot, error) {
	envelopes, err := m.next.Children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.TreeSnapshot, 0, len(envelopes))
	for _, e := range envelopes {
		snap, err := m.open(e)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, treeID string) error {
	return m.next.Delete(ctx, treeID)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

// open fails closed: a snapshot without an envelope is an error, not plain data.
func (m *encryptionMiddleware) open(envelope *domain.TreeSnapshot) (*domain.TreeSnapshot, error) {
	encoded, ok := envelope.Meta[EnvelopeKey]
	if !ok {
		return nil, fmt.Errorf("tree %s: %w", envelope.ID, ErrNotEncrypted)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt tree %s: %w", envelope.ID, err)
	}

	var p payload
	if err := json.Unmarshal(plainText, &p); err != nil {
		return nil, &domain.CorruptionError{ID: envelope.ID, Reason: fmt.Sprintf("decrypted payload: %v", err)}
	}

	snap := *envelope
	snap.Nodes = p.Nodes
	snap.Meta = p.Meta
	return &snap, nil
}

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
