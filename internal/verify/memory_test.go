package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIdentity = "ab12cd@example.org"

func TestGenerateCode(t *testing.T) {
	code, err := GenerateCode(6)
	require.NoError(t, err)
	require.Len(t, code, 6)
	for _, c := range code {
		assert.True(t, c >= '0' && c <= '9', "code must be numeric, got %q", code)
	}

	// Zero length falls back to the default.
	code, err = GenerateCode(0)
	require.NoError(t, err)
	assert.Len(t, code, DefaultCodeLength)
}

func TestMemoryStore_issueThenVerify(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5*time.Minute, 6)

	code, err := s.Issue(ctx, testIdentity)
	require.NoError(t, err)

	ok, err := s.Verify(ctx, testIdentity, code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_throttleWithinWindow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5*time.Minute, 6)

	first, err := s.Issue(ctx, testIdentity)
	require.NoError(t, err)

	_, err = s.Issue(ctx, testIdentity)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	// The first record is unchanged by the refused reissue.
	ok, err := s.Verify(ctx, testIdentity, first)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_reissueInvalidatesOldCode(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5*time.Minute, 6)

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	first, err := s.Issue(ctx, testIdentity)
	require.NoError(t, err)

	// Let the throttle window elapse, then issue again.
	now = now.Add(5*time.Minute + time.Second)
	second, err := s.Issue(ctx, testIdentity)
	require.NoError(t, err)

	ok, err := s.Verify(ctx, testIdentity, first)
	require.NoError(t, err)
	assert.False(t, ok, "superseded code must no longer verify")

	ok, err = s.Verify(ctx, testIdentity, second)
	require.NoError(t, err)
	assert.True(t, ok, "only the last-issued code is valid")
}

func TestMemoryStore_codeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5*time.Minute, 6)

	code, err := s.Issue(ctx, testIdentity)
	require.NoError(t, err)

	ok, err := s.Verify(ctx, testIdentity, code)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Verify(ctx, testIdentity, code)
	require.NoError(t, err)
	assert.False(t, ok, "a consumed code must not verify twice")
}

func TestMemoryStore_wrongCodeIsNotAnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(5*time.Minute, 6)

	code, err := s.Issue(ctx, testIdentity)
	require.NoError(t, err)

	ok, err := s.Verify(ctx, testIdentity, "000000x")
	require.NoError(t, err)
	require.False(t, ok)

	// A wrong attempt does not consume the record.
	ok, err = s.Verify(ctx, testIdentity, code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_expiredCodeDoesNotVerify(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute, 6)

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	code, err := s.Issue(ctx, testIdentity)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	ok, err := s.Verify(ctx, testIdentity, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_unknownIdentity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute, 6)

	ok, err := s.Verify(ctx, "nobody@example.org", "123456")
	require.NoError(t, err)
	assert.False(t, ok)
}
