package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T) AuthService {
	t.Helper()
	return NewAuthService(openTestStore(t), "test-signing-secret")
}

func TestRegisterValidation(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	assert.Error(t, auth.Register(ctx, "", "long enough password"))
	assert.Error(t, auth.Register(ctx, "miles", "short"))
	assert.NoError(t, auth.Register(ctx, "miles", "kind of blue"))

	// Duplicate usernames are rejected by the store.
	assert.Error(t, auth.Register(ctx, "miles", "another password"))
}

func TestLoginIssuesVerifiableTokens(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	require.NoError(t, auth.Register(ctx, "miles", "kind of blue"))

	pair, err := auth.Login(ctx, "miles", "kind of blue")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.Access)
	assert.NotEmpty(t, pair.Refresh)
	assert.NotEqual(t, pair.Access, pair.Refresh)

	username, err := auth.Verify(pair.Access)
	require.NoError(t, err)
	assert.Equal(t, "miles", username)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	require.NoError(t, auth.Register(ctx, "miles", "kind of blue"))

	_, err := auth.Login(ctx, "miles", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = auth.Login(ctx, "nobody", "kind of blue")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyRejectsTamperedTokens(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	require.NoError(t, auth.Register(ctx, "miles", "kind of blue"))
	pair, err := auth.Login(ctx, "miles", "kind of blue")
	require.NoError(t, err)

	_, err = auth.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Flip a character in the signature half.
	dot := strings.LastIndex(pair.Access, ".")
	sig := []byte(pair.Access[dot+1:])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	_, err = auth.Verify(pair.Access[:dot+1] + string(sig))
	assert.ErrorIs(t, err, ErrInvalidToken)

	// A refresh token is not accepted where an access token is expected.
	_, err = auth.Verify(pair.Refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	ctx := context.Background()

	s := openTestStore(t)
	issuer := NewAuthService(s, "secret-one")
	verifier := NewAuthService(s, "secret-two")

	require.NoError(t, issuer.Register(ctx, "miles", "kind of blue"))
	pair, err := issuer.Login(ctx, "miles", "kind of blue")
	require.NoError(t, err)

	_, err = verifier.Verify(pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRotatesPair(t *testing.T) {
	auth := newTestAuth(t)
	ctx := context.Background()

	require.NoError(t, auth.Register(ctx, "miles", "kind of blue"))
	pair, err := auth.Login(ctx, "miles", "kind of blue")
	require.NoError(t, err)

	rotated, err := auth.Refresh(ctx, pair.Refresh)
	require.NoError(t, err)
	assert.NotEqual(t, pair.Access, rotated.Access)

	username, err := auth.Verify(rotated.Access)
	require.NoError(t, err)
	assert.Equal(t, "miles", username)

	// An access token cannot stand in for a refresh token.
	_, err = auth.Refresh(ctx, pair.Access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
