// Package provenance signs and verifies the canonical hash of approved
// calculation runs with an Ed25519 keypair, producing the attestation
// records an external verifier can check without access to this system.
package provenance

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"
)

const (
	// Algo identifies the signature scheme on signature records.
	Algo = "ed25519"

	pemTypePrivate = "PRIVATE KEY"
	pemTypePublic  = "PUBLIC KEY"
)

// KeyProvider resolves the signing keypair exactly once per process. If both
// PEM halves are supplied the pair is loaded from them; otherwise a fresh
// keypair is generated on first use and held for the process lifetime. The
// sync.Once guard means concurrent first callers always see the same pair.
type KeyProvider struct {
	privatePEM string
	publicPEM  string

	once sync.Once
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	err  error
}

// NewKeyProvider creates a provider. Pass empty strings to generate an
// ephemeral pair on first use; key custody beyond load-or-generate is out of
// scope here.
func NewKeyProvider(privatePEM, publicPEM string) *KeyProvider {
	return &KeyProvider{privatePEM: privatePEM, publicPEM: publicPEM}
}

// Material returns the resolved keypair.
func (p *KeyProvider) Material() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	p.once.Do(func() {
		if p.privatePEM != "" && p.publicPEM != "" {
			p.priv, p.pub, p.err = parseKeyPair([]byte(p.privatePEM), []byte(p.publicPEM))
			return
		}
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			p.err = fmt.Errorf("generating signing keypair: %w", err)
			return
		}
		p.priv, p.pub = priv, pub
	})
	return p.priv, p.pub, p.err
}

// PublicKeyPEM returns the resolved public key in PKIX PEM form.
func (p *KeyProvider) PublicKeyPEM() (string, error) {
	_, pub, err := p.Material()
	if err != nil {
		return "", err
	}
	return EncodePublicKeyPEM(pub)
}

// PrivateKeyPEM returns the resolved private key in PKCS#8 PEM form.
func (p *KeyProvider) PrivateKeyPEM() (string, error) {
	priv, _, err := p.Material()
	if err != nil {
		return "", err
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", fmt.Errorf("encoding private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePrivate, Bytes: der})), nil
}

// EncodePublicKeyPEM encodes an Ed25519 public key as PKIX PEM.
func EncodePublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("encoding public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: pemTypePublic, Bytes: der})), nil
}

func parseKeyPair(privPEM, pubPEM []byte) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	priv, err := parsePrivateKey(privPEM)
	if err != nil {
		return nil, nil, err
	}
	pub, err := ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

func parsePrivateKey(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("private key: no PEM block found")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key: expected ed25519, got %T", key)
	}
	return priv, nil
}

// ParsePublicKeyPEM parses a PKIX PEM Ed25519 public key.
func ParsePublicKeyPEM(data []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("public key: no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key: expected ed25519, got %T", key)
	}
	return pub, nil
}
