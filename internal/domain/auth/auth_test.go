package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleSeller.Valid())
	assert.True(t, RoleAdmin.Valid())

	assert.False(t, Role("").Valid())
	assert.False(t, Role("user").Valid())
	assert.False(t, Role("SUPERADMIN").Valid())
}

func TestAuthorizeStoreWrite(t *testing.T) {
	tests := []struct {
		name    string
		id      Identity
		owner   string
		wantErr bool
	}{
		{"owning seller", Identity{UserID: "u1", Role: RoleSeller}, "u1", false},
		{"non-owning seller", Identity{UserID: "u1", Role: RoleSeller}, "u2", true},
		{"admin on any store", Identity{UserID: "u1", Role: RoleAdmin}, "u2", false},
		{"plain user on own id", Identity{UserID: "u1", Role: RoleUser}, "u1", true},
		{"unknown role", Identity{UserID: "u1", Role: Role("GUEST")}, "u1", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AuthorizeStoreWrite(tt.id, tt.owner)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnauthorized)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
