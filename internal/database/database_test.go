package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harvestbot/harvester/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ConnectSqliteAndSetup(t *testing.T) {
	m := NewManager(zerolog.Nop())

	require.NoError(t, m.ConnectSqlite(""))
	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)

	require.NoError(t, m.Setup())
	for _, table := range []any{&model.Session{}, &model.Tick{}, &model.Assignment{}} {
		assert.True(t, m.DB.Migrator().HasTable(table))
	}

	require.NoError(t, m.Close())
}

func TestManager_SetupWithoutConnection(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.Error(t, m.Setup())
	assert.NoError(t, m.Close())
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.ConnectSqlite(""))
	require.NoError(t, m.Setup())
	defer m.Close()

	require.NoError(t, m.DB.Create(&model.Session{UUID: "abc", Transport: "line"}).Error)

	path := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, m.DumpMemoryToDisk(path))
	// dumping again replaces the previous file
	require.NoError(t, m.DumpMemoryToDisk(path))

	restored, err := GetSqliteDBStandalone(path)
	require.NoError(t, err)
	var sessions []model.Session
	require.NoError(t, restored.Find(&sessions).Error)
	require.Len(t, sessions, 1)
	assert.Equal(t, "abc", sessions[0].UUID)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := GetSqliteDBStandalone("")
	require.NoError(t, err)
	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}

func TestGetBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.db", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.db"), 0755))

	paths, err := GetBackupDBPaths(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, paths)

	_, err = GetBackupDBPaths(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
