package identity_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/marketbase/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestNewIdentityFromUser(t *testing.T) {
	user := &identity.User{
		ID:        uuid.New(),
		FirstName: "Buyer",
		LastName:  "Example",
		Email:     "buyer@example.com",
		Role:      identity.RoleAdmin,
		Provider:  identity.ProviderPassword,
		AvatarURL: "https://cdn.example.com/a.png",
	}

	ident := identity.NewIdentityFromUser(user)

	assert.Equal(t, user.ID.String(), ident.ID())
	assert.Equal(t, "buyer@example.com", ident.Email())
	assert.Equal(t, "Buyer Example", ident.DisplayName())
	assert.Equal(t, identity.RoleAdmin, ident.Role())
	assert.Equal(t, identity.ProviderPassword, ident.Provider())
	assert.Equal(t, "https://cdn.example.com/a.png", ident.Avatar())
}

func TestNewIdentityFromNilUser(t *testing.T) {
	assert.Nil(t, identity.NewIdentityFromUser(nil))
}

func TestUserIdentityZeroValue(t *testing.T) {
	var ident identity.UserIdentity

	assert.Empty(t, ident.ID())
	assert.Empty(t, ident.Email())
	assert.Empty(t, ident.DisplayName())
	assert.Empty(t, ident.Role())
	assert.Empty(t, ident.Provider())
	assert.Empty(t, ident.Avatar())
}
