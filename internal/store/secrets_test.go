package store

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"isp-saas.com/routersync/internal/models"
	"isp-saas.com/routersync/pkg/database"
)

// Store tests run against a real postgres. Point the DB_* variables at a
// scratch database and set STORE_TEST_DB=1 to enable them.
func testStore(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("STORE_TEST_DB") == "" {
		t.Skip("STORE_TEST_DB not set")
	}

	db, err := database.Connect()
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations("../../migrations"))
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestSuspendRestoreExactReversal(t *testing.T) {
	s := testStore(t)

	goldID, err := s.CreateProfile(&models.ServiceProfile{
		Name: uniqueName("gold"), IsActive: true, AutoSync: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.DeleteProfile(goldID) })

	parkID, err := s.CreateProfile(&models.ServiceProfile{
		Name: uniqueName("suspended"), IsActive: true, AutoSync: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.DeleteProfile(parkID) })

	secretID, err := s.CreateSecret(&models.Secret{
		Username: uniqueName("alice"), Password: "pw", Service: "pppoe",
		ProfileID: goldID, AutoSync: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.DeleteSecret(secretID) })

	require.NoError(t, s.SuspendSecret(secretID, parkID))

	sec, err := s.GetSecret(secretID)
	require.NoError(t, err)
	assert.True(t, sec.Suspended())
	assert.Equal(t, parkID, sec.ProfileID)
	require.True(t, sec.OriginalProfileID.Valid)
	assert.Equal(t, int64(goldID), sec.OriginalProfileID.Int64)

	// A second suspend must not overwrite the remembered profile with the
	// suspension profile itself.
	require.Error(t, s.SuspendSecret(secretID, parkID))

	sec, err = s.GetSecret(secretID)
	require.NoError(t, err)
	assert.Equal(t, int64(goldID), sec.OriginalProfileID.Int64)

	require.NoError(t, s.RestoreSecret(secretID))

	sec, err = s.GetSecret(secretID)
	require.NoError(t, err)
	assert.False(t, sec.Suspended())
	assert.Equal(t, goldID, sec.ProfileID)
	assert.False(t, sec.OriginalProfileID.Valid)

	// Restoring a secret that is not suspended is rejected.
	require.Error(t, s.RestoreSecret(secretID))
}
