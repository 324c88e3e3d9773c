package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignerSignAndVerify(t *testing.T) {
	signer := NewSigner("secret", time.Hour)

	token, expiresAt, err := signer.Sign("events-20260831.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	name, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "events-20260831.csv", name)
}

func TestSignerRejectsExpired(t *testing.T) {
	signer := NewSigner("secret", 10*time.Millisecond)

	token, _, err := signer.Sign("events.csv")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = signer.Verify(token)
	require.Error(t, err)
}

func TestSignerRejectsTampered(t *testing.T) {
	signer := NewSigner("secret", time.Hour)

	token, _, err := signer.Sign("events.csv")
	require.NoError(t, err)

	_, err = signer.Verify(token + "0")
	require.Error(t, err)

	other := NewSigner("different-secret", time.Hour)
	_, err = other.Verify(token)
	require.Error(t, err)
}
