package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"lotmarket/internal/models"
)

// openTestDB points the package-level connection at a throwaway file.
func openTestDB(t *testing.T) {
	t.Helper()
	err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close() })
}

func seedUser(t *testing.T, platformID int64) *models.User {
	t.Helper()
	user, err := NewUserRepo().UpsertFromIdentity(&models.IdentityUser{
		ID:        platformID,
		FirstName: "Test",
		Username:  "test_user",
	})
	require.NoError(t, err)
	return user
}
