package provenance

import (
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonledger/core/pkg/calc"
)

func approvedRun() *calc.Run {
	return &calc.Run{
		ID:           "run-1",
		OrgID:        "org-1",
		Type:         calc.RunTypeCFO,
		TotalKgCO2e:  65,
		TotalTCO2e:   0.065,
		Details:      calc.Details{Rows: []calc.Row{{ActivityID: "a1", EFKey: "diesel", KgCO2e: 65}}},
		ReviewStatus: calc.ReviewApproved,
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	s := NewSigner(NewKeyProvider("", ""))

	sig, err := s.SignRun(approvedRun(), "auditor@example.com")
	require.NoError(t, err)
	assert.Equal(t, Algo, sig.Algo)
	assert.NotEmpty(t, sig.RunHash)
	assert.NotEmpty(t, sig.PublicKeyPEM)

	assert.True(t, Verify(sig.RunHash, sig.SignatureB64, sig.PublicKeyPEM))
}

func TestVerifyRejectsTampering(t *testing.T) {
	s := NewSigner(NewKeyProvider("", ""))
	sig, err := s.SignRun(approvedRun(), "")
	require.NoError(t, err)

	t.Run("flipped hash byte", func(t *testing.T) {
		tampered := []byte(sig.RunHash)
		if tampered[0] == 'a' {
			tampered[0] = 'b'
		} else {
			tampered[0] = 'a'
		}
		assert.False(t, Verify(string(tampered), sig.SignatureB64, sig.PublicKeyPEM))
	})

	t.Run("flipped signature byte", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(sig.SignatureB64)
		require.NoError(t, err)
		raw[0] ^= 0x01
		assert.False(t, Verify(sig.RunHash, base64.StdEncoding.EncodeToString(raw), sig.PublicKeyPEM))
	})

	t.Run("wrong key", func(t *testing.T) {
		otherPEM, err := NewKeyProvider("", "").PublicKeyPEM()
		require.NoError(t, err)
		assert.False(t, Verify(sig.RunHash, sig.SignatureB64, otherPEM))
	})
}

func TestVerifyMalformedInputsReturnFalse(t *testing.T) {
	assert.False(t, Verify("not-hex!", "c2ln", "-----BEGIN PUBLIC KEY-----\n-----END PUBLIC KEY-----"))
	assert.False(t, Verify("abcd", "%%%not-base64%%%", ""))
	assert.False(t, Verify("abcd", "c2ln", "garbage"))
}

func TestSignRequiresApproval(t *testing.T) {
	s := NewSigner(NewKeyProvider("", ""))

	for _, status := range []calc.ReviewStatus{calc.ReviewDraft, calc.ReviewReviewed} {
		run := approvedRun()
		run.ReviewStatus = status
		_, err := s.SignRun(run, "")
		require.ErrorIs(t, err, ErrNotApproved, "status %s", status)
	}
}

func TestSigningDoesNotChangeReviewState(t *testing.T) {
	s := NewSigner(NewKeyProvider("", ""))
	run := approvedRun()
	_, err := s.SignRun(run, "")
	require.NoError(t, err)
	assert.Equal(t, calc.ReviewApproved, run.ReviewStatus)

	// Re-signing is allowed and yields a fresh record.
	sig2, err := s.SignRun(run, "")
	require.NoError(t, err)
	assert.True(t, Verify(sig2.RunHash, sig2.SignatureB64, sig2.PublicKeyPEM))
}

func TestRunHashCoversDetailsOnly(t *testing.T) {
	run := approvedRun()
	h1, err := RunHash(run)
	require.NoError(t, err)

	// Review bookkeeping outside the projection does not move the hash.
	now := time.Now()
	run.ApprovedBy = "someone-else"
	run.ApprovedAt = &now
	h2, err := RunHash(run)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// But the attested content does.
	run.TotalTCO2e = 0.066
	h3, err := RunHash(run)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestKeyProviderLoadsSuppliedPEM(t *testing.T) {
	source := NewKeyProvider("", "")
	privPEM, err := source.PrivateKeyPEM()
	require.NoError(t, err)
	pubPEM, err := source.PublicKeyPEM()
	require.NoError(t, err)

	loaded := NewKeyProvider(privPEM, pubPEM)
	s := NewSigner(loaded)
	sig, err := s.SignRun(approvedRun(), "")
	require.NoError(t, err)
	assert.Equal(t, pubPEM, sig.PublicKeyPEM)
	assert.True(t, Verify(sig.RunHash, sig.SignatureB64, pubPEM))
}

func TestKeyProviderGeneratesOnceUnderConcurrency(t *testing.T) {
	p := NewKeyProvider("", "")

	const callers = 16
	pems := make([]string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			pem, err := p.PublicKeyPEM()
			if err != nil {
				t.Error(err)
				return
			}
			pems[i] = pem
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Equal(t, pems[0], pems[i], "all callers must see one keypair")
	}
}

func TestKeyProviderRejectsBadPEM(t *testing.T) {
	p := NewKeyProvider("not a key", "also not a key")
	_, _, err := p.Material()
	require.Error(t, err)
}
