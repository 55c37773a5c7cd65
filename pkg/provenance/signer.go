package provenance

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carbonledger/core/pkg/calc"
	"github.com/carbonledger/core/pkg/canonicalize"
)

// ErrNotApproved reports an attempt to sign a run that has not reached
// APPROVED review state.
var ErrNotApproved = errors.New("run must be APPROVED before signing")

// Signature is one append-only attestation record for a run. A run may be
// signed more than once; the latest record is authoritative for
// verification queries.
type Signature struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	RunID string `json:"run_id"`

	Algo         string `json:"algo"`
	RunHash      string `json:"run_hash"`
	SignatureB64 string `json:"signature_b64"`
	PublicKeyPEM string `json:"public_key_pem"`

	SignedBy string    `json:"signed_by,omitempty"`
	SignedAt time.Time `json:"signed_at"`
}

// Signer signs run hashes with the process keypair.
type Signer struct {
	keys  *KeyProvider
	clock func() time.Time
}

// NewSigner creates a signer over the given key provider.
func NewSigner(keys *KeyProvider) *Signer {
	return &Signer{keys: keys, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (s *Signer) WithClock(clock func() time.Time) *Signer {
	s.clock = clock
	return s
}

// RunHash computes the canonical hash over the signed projection of a run:
// identity, type, total and details. Review bookkeeping is excluded so
// re-approval does not silently change what was attested.
func RunHash(run *calc.Run) (string, error) {
	projection := map[string]any{
		"run_id":      run.ID,
		"run_type":    run.Type,
		"total_tco2e": run.TotalTCO2e,
		"details":     run.Details,
	}
	return canonicalize.Hash(projection)
}

// SignRun signs the canonical hash of an approved run. Signing never alters
// the run's review state.
func (s *Signer) SignRun(run *calc.Run, signedBy string) (*Signature, error) {
	if run.ReviewStatus != calc.ReviewApproved {
		return nil, fmt.Errorf("%w: run %s is %s", ErrNotApproved, run.ID, run.ReviewStatus)
	}

	hash, err := RunHash(run)
	if err != nil {
		return nil, fmt.Errorf("hashing run %s: %w", run.ID, err)
	}

	priv, pub, err := s.keys.Material()
	if err != nil {
		return nil, err
	}
	digest, err := hex.DecodeString(hash)
	if err != nil {
		return nil, fmt.Errorf("decoding run hash: %w", err)
	}

	sig := ed25519.Sign(priv, digest)
	pubPEM, err := EncodePublicKeyPEM(pub)
	if err != nil {
		return nil, err
	}

	return &Signature{
		ID:           uuid.NewString(),
		OrgID:        run.OrgID,
		RunID:        run.ID,
		Algo:         Algo,
		RunHash:      hash,
		SignatureB64: base64.StdEncoding.EncodeToString(sig),
		PublicKeyPEM: pubPEM,
		SignedBy:     signedBy,
		SignedAt:     s.clock().UTC(),
	}, nil
}

// Verify checks a base64 signature over a hex run hash against a PEM public
// key. It returns false on any cryptographic mismatch or malformed input;
// it never fails with an error.
func Verify(hashHex, signatureB64, publicKeyPEM string) bool {
	digest, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}
	pub, err := ParsePublicKeyPEM([]byte(publicKeyPEM))
	if err != nil {
		return false
	}
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, digest, sig)
}
