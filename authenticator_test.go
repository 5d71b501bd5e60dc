package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/marketbase/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("successful login issues a session and token", func(t *testing.T) {
		provider := new(MockIdentityProvider)
		auther := identity.NewAuthenticator(provider, nil, newMockConfig())

		ident := testIdentity()
		provider.On("VerifyIdentity", ctx, "buyer@example.com", "password123").
			Return(ident, nil).Once()

		session, token, err := auther.Login(ctx, "buyer@example.com", "password123")
		require.NoError(t, err)
		require.NotNil(t, session)
		require.NotEmpty(t, token)

		assert.Equal(t, ident.ID(), session.GetUserID())
		assert.Equal(t, "buyer@example.com", session.GetEmail())

		parsed, err := jwt.ParseWithClaims(token, &identity.SessionClaims{}, func(t *jwt.Token) (any, error) {
			return []byte("test-signing-key"), nil
		})
		require.NoError(t, err)
		require.True(t, parsed.Valid)

		claims, ok := parsed.Claims.(*identity.SessionClaims)
		require.True(t, ok)
		assert.Equal(t, ident.ID(), claims.Subject())
		assert.Equal(t, "test-issuer", claims.RegisteredClaims.Issuer)
		assert.Equal(t, jwt.ClaimStrings{"test:audience"}, claims.RegisteredClaims.Audience)

		provider.AssertExpectations(t)
	})

	t.Run("failed verification surfaces the error", func(t *testing.T) {
		provider := new(MockIdentityProvider)
		auther := identity.NewAuthenticator(provider, nil, newMockConfig())

		provider.On("VerifyIdentity", ctx, "bad@example.com", "wrong").
			Return(nil, identity.ErrInvalidCredentials).Once()

		session, token, err := auther.Login(ctx, "bad@example.com", "wrong")
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
		assert.Nil(t, session)
		assert.Empty(t, token)
	})

	t.Run("nil identity becomes invalid credentials", func(t *testing.T) {
		provider := new(MockIdentityProvider)
		auther := identity.NewAuthenticator(provider, nil, newMockConfig())

		provider.On("VerifyIdentity", ctx, "odd@example.com", "password").
			Return(nil, nil).Once()

		_, _, err := auther.Login(ctx, "odd@example.com", "password")
		assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	})
}

func TestLoginActivitySink(t *testing.T) {
	ctx := context.Background()
	ident := testIdentity()

	t.Run("success event", func(t *testing.T) {
		provider := new(MockIdentityProvider)
		sink := new(MockActivitySink)

		auther := identity.NewAuthenticator(provider, nil, newMockConfig()).WithActivitySink(sink)

		provider.On("VerifyIdentity", ctx, ident.Email(), "password").
			Return(ident, nil).Once()

		sink.On("Record", mock.Anything, mock.MatchedBy(func(evt identity.ActivityEvent) bool {
			return evt.EventType == identity.ActivityEventSessionIssued
		})).Return(nil).Once()

		sink.On("Record", mock.Anything, mock.MatchedBy(func(evt identity.ActivityEvent) bool {
			return evt.EventType == identity.ActivityEventLoginSuccess &&
				evt.UserID == ident.ID()
		})).Return(nil).Once()

		_, _, err := auther.Login(ctx, ident.Email(), "password")
		require.NoError(t, err)

		sink.AssertExpectations(t)
		provider.AssertExpectations(t)
	})

	t.Run("failure event", func(t *testing.T) {
		provider := new(MockIdentityProvider)
		sink := new(MockActivitySink)

		auther := identity.NewAuthenticator(provider, nil, newMockConfig()).WithActivitySink(sink)

		provider.On("VerifyIdentity", ctx, "unknown@example.com", "password").
			Return(nil, errors.New("boom")).Once()

		sink.On("Record", mock.Anything, mock.MatchedBy(func(evt identity.ActivityEvent) bool {
			return evt.EventType == identity.ActivityEventLoginFailure &&
				evt.UserID == "" &&
				evt.Metadata["email"] == "unknown@example.com"
		})).Return(nil).Once()

		_, _, err := auther.Login(ctx, "unknown@example.com", "password")
		require.Error(t, err)

		sink.AssertExpectations(t)
		provider.AssertExpectations(t)
	})
}

func TestExchangeProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("assertion resolves through the bridge to a session", func(t *testing.T) {
		store := newMemoryUserStore()
		bridge := identity.NewOAuthBridge(store)
		auther := identity.NewAuthenticator(new(MockIdentityProvider), bridge, newMockConfig())

		session, token, err := auther.ExchangeProvider(ctx, verifiedAssertion())
		require.NoError(t, err)
		require.NotNil(t, session)
		assert.NotEmpty(t, token)
		assert.Equal(t, "buyer@example.com", session.GetEmail())
		assert.Equal(t, "oauth:google", session.Provider)
	})

	t.Run("missing bridge fails the exchange", func(t *testing.T) {
		auther := identity.NewAuthenticator(new(MockIdentityProvider), nil, newMockConfig())

		_, _, err := auther.ExchangeProvider(ctx, verifiedAssertion())
		assert.ErrorIs(t, err, identity.ErrProviderExchangeFailed)
	})
}

func TestSessionFromToken(t *testing.T) {
	provider := new(MockIdentityProvider)
	auther := identity.NewAuthenticator(provider, nil, newMockConfig())

	now := time.Now()
	userID := uuid.New().String()

	claims := &identity.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  []string{"test:audience"},
			Issuer:    "test-issuer",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		},
		UID:       userID,
		UserEmail: "buyer@example.com",
		UserRole:  identity.RoleAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte("test-signing-key"))
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		session, err := auther.SessionFromToken(tokenString)
		require.NoError(t, err)
		require.NotNil(t, session)

		assert.Equal(t, userID, session.GetUserID())
		assert.Equal(t, "buyer@example.com", session.GetEmail())
		assert.Equal(t, identity.RoleAdmin, session.Role)
	})

	t.Run("tampered signature", func(t *testing.T) {
		session, err := auther.SessionFromToken(tokenString + "tampered")
		assert.Error(t, err)
		assert.Nil(t, session)
	})

	t.Run("expired token", func(t *testing.T) {
		expiredClaims := &identity.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID,
				Audience:  []string{"test:audience"},
				Issuer:    "test-issuer",
				IssuedAt:  jwt.NewNumericDate(now.Add(-48 * time.Hour)),
				ExpiresAt: jwt.NewNumericDate(now.Add(-24 * time.Hour)),
			},
			UID: userID,
		}

		expiredToken := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims)
		expiredString, err := expiredToken.SignedString([]byte("test-signing-key"))
		require.NoError(t, err)

		session, err := auther.SessionFromToken(expiredString)
		assert.ErrorIs(t, err, identity.ErrSessionExpired)
		assert.Nil(t, session)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		foreignClaims := &identity.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   userID,
				Audience:  []string{"test:audience"},
				Issuer:    "someone-else",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
		}

		foreignToken := jwt.NewWithClaims(jwt.SigningMethodHS256, foreignClaims)
		foreignString, err := foreignToken.SignedString([]byte("test-signing-key"))
		require.NoError(t, err)

		session, err := auther.SessionFromToken(foreignString)
		assert.Error(t, err)
		assert.Nil(t, session)
	})
}

func TestSessionFromTokenCustomValidator(t *testing.T) {
	provider := new(MockIdentityProvider)

	called := false
	validator := identity.TokenValidatorFunc(func(tokenString string) (identity.AuthClaims, error) {
		called = true
		return &identity.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "external-user",
				IssuedAt:  jwt.NewNumericDate(time.Now()),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			UID: "external-user",
		}, nil
	})

	auther := identity.NewAuthenticator(provider, nil, newMockConfig()).
		WithTokenValidator(validator)

	session, err := auther.SessionFromToken("opaque-external-token")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, "external-user", session.GetUserID())
}

func TestIdentityFromSession(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	auther := identity.NewAuthenticator(provider, nil, newMockConfig())

	session := &identity.SessionObject{
		SubjectID: uuid.New().String(),
		UserEmail: "buyer@example.com",
	}

	t.Run("identity found", func(t *testing.T) {
		ident := testIdentity()
		provider.On("FindIdentityByEmail", ctx, "buyer@example.com").
			Return(ident, nil).Once()

		resolved, err := auther.IdentityFromSession(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, ident.ID(), resolved.ID())
	})

	t.Run("identity missing", func(t *testing.T) {
		provider.On("FindIdentityByEmail", ctx, "buyer@example.com").
			Return(nil, identity.ErrIdentityNotFound).Once()

		resolved, err := auther.IdentityFromSession(ctx, session)
		assert.ErrorIs(t, err, identity.ErrIdentityNotFound)
		assert.Nil(t, resolved)
	})
}
