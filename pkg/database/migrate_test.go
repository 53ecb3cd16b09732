package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationNamesSorted(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "001_user_libraries.sql", names[0])
	require.IsNonDecreasing(t, names)

	sql, err := migrationsFS.ReadFile("migrations/" + names[0])
	require.NoError(t, err)
	require.Contains(t, string(sql), "CREATE TABLE IF NOT EXISTS user_libraries")
}
