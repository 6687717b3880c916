package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestTokenService(t *testing.T, now time.Time) *StepTokenService {
	t.Helper()
	svc, err := NewStepTokenService(testKeyHex, time.Hour)
	require.NoError(t, err)
	svc.now = func() time.Time { return now }
	return svc
}

func TestStepToken_RoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, now)

	token := svc.Issue("red-1", "step-1", now)
	assert.True(t, strings.HasPrefix(token, "v4.local."))

	presented, err := svc.Verify(token, "red-1", "step-1")
	require.NoError(t, err)
	assert.True(t, presented.Equal(now))
}

func TestStepToken_Rejects(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(t, now)
	token := svc.Issue("red-1", "step-1", now)

	t.Run("other step", func(t *testing.T) {
		_, err := svc.Verify(token, "red-1", "step-2")
		assert.ErrorIs(t, err, ErrStepMismatch)
	})

	t.Run("other redemption", func(t *testing.T) {
		_, err := svc.Verify(token, "red-2", "step-1")
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		svc.now = func() time.Time { return now.Add(2 * time.Hour) }
		defer func() { svc.now = func() time.Time { return now } }()
		_, err := svc.Verify(token, "red-1", "step-1")
		assert.Error(t, err)
	})

	t.Run("tampered", func(t *testing.T) {
		_, err := svc.Verify(token[:len(token)-4]+"AAAA", "red-1", "step-1")
		assert.Error(t, err)
	})

	t.Run("other key", func(t *testing.T) {
		other, err := NewStepTokenService(strings.Repeat("ab", 32), time.Hour)
		require.NoError(t, err)
		other.now = svc.now
		_, err = other.Verify(token, "red-1", "step-1")
		assert.Error(t, err)
	})
}

func TestNewStepTokenService_InvalidKey(t *testing.T) {
	_, err := NewStepTokenService("abc", time.Hour)
	assert.Error(t, err)

	_, err = NewStepTokenService(strings.Repeat("zz", 32), time.Hour)
	assert.Error(t, err)
}

func TestLoadOrGenerateKey(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	first, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, first, keyHexLength)

	info, err := os.Stat(filepath.Join(dir, keyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFileName), []byte("short"), 0o600))
	_, err = LoadOrGenerateKey(dir)
	assert.Error(t, err)
}
