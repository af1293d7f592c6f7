package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailtriage/internal/model"
)

func TestStateRoundTrip(t *testing.T) {
	s := NewStateSigner("secret", time.Minute)

	state, err := s.Issue(model.ProviderGoogle)
	require.NoError(t, err)
	assert.NoError(t, s.Verify(state, model.ProviderGoogle))
}

func TestStateRejectsOtherProvider(t *testing.T) {
	s := NewStateSigner("secret", time.Minute)
	state, err := s.Issue(model.ProviderGoogle)
	require.NoError(t, err)

	assert.ErrorIs(t, s.Verify(state, model.ProviderOutlook), ErrInvalidState)
}

func TestStateRejectsWrongSecretAndExpiry(t *testing.T) {
	s := NewStateSigner("secret", time.Minute)
	state, err := s.Issue(model.ProviderOutlook)
	require.NoError(t, err)

	other := NewStateSigner("other", time.Minute)
	assert.ErrorIs(t, other.Verify(state, model.ProviderOutlook), ErrInvalidState)

	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.ErrorIs(t, s.Verify(state, model.ProviderOutlook), ErrInvalidState)

	assert.ErrorIs(t, s.Verify("garbage", model.ProviderOutlook), ErrInvalidState)
}
