package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/familytree/internal/backup"
	"github.com/scrypster/familytree/internal/storage/sqlite"
	"github.com/scrypster/familytree/pkg/types"
)

// seedDatabase creates a file database with two members and one edge pair.
func seedDatabase(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "familytree.db")
	ctx := context.Background()

	store, err := sqlite.NewStore(path)
	require.NoError(t, err)
	for _, id := range []string{"ines", "paulo"} {
		require.NoError(t, store.UpsertMember(ctx, &types.Member{ID: id, FirstName: id}))
	}
	primary := &types.Relation{ID: "r1", FromMemberID: "ines", ToMemberID: "paulo", Type: types.RelationSpouse}
	require.NoError(t, store.CreateRelationPair(ctx, primary, primary.ReciprocalOf("r2"), false))
	require.NoError(t, store.Close())
	return path
}

func TestSnapshot_CreatesVerifiedCopy(t *testing.T) {
	dir := t.TempDir()
	dbPath := seedDatabase(t, dir)
	backupDir := filepath.Join(dir, "backups")

	result, err := backup.Snapshot(context.Background(), backup.Config{DBPath: dbPath, Dir: backupDir}, nil)
	require.NoError(t, err)

	assert.FileExists(t, result.Path)
	assert.Equal(t, 2, result.Members)
	assert.Equal(t, 2, result.Relations)
	assert.Positive(t, result.Size)
	assert.Zero(t, result.Pruned)

	snapshots, err := backup.List(backupDir)
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, result.Path, snapshots[0].Path)
}

func TestSnapshot_PrunesBeyondKeep(t *testing.T) {
	dir := t.TempDir()
	dbPath := seedDatabase(t, dir)
	backupDir := filepath.Join(dir, "backups")
	cfg := backup.Config{DBPath: dbPath, Dir: backupDir, Keep: 2}

	var last *backup.Result
	for i := 0; i < 3; i++ {
		var err error
		last, err = backup.Snapshot(context.Background(), cfg, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, last.Pruned)

	snapshots, err := backup.List(backupDir)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, last.Path, snapshots[0].Path, "newest first")
}

func TestSnapshot_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	_, err := backup.Snapshot(context.Background(), backup.Config{
		DBPath: filepath.Join(dir, "nope.db"),
		Dir:    filepath.Join(dir, "backups"),
	}, nil)
	assert.ErrorIs(t, err, backup.ErrNoDatabase)
}

func TestList_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "familytree-garbage.db"), []byte("x"), 0o600))

	snapshots, err := backup.List(dir)
	require.NoError(t, err)
	assert.Empty(t, snapshots)

	snapshots, err = backup.List(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestRestore_ReplacesDatabase(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	dbPath := seedDatabase(t, dir)

	result, err := backup.Snapshot(ctx, backup.Config{DBPath: dbPath, Dir: filepath.Join(dir, "backups")}, nil)
	require.NoError(t, err)

	store, err := sqlite.NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.DeleteRelation(ctx, "r1"))
	require.NoError(t, store.Close())

	require.NoError(t, backup.Restore(ctx, result.Path, dbPath))

	members, relations, err := backup.Verify(ctx, dbPath)
	require.NoError(t, err)
	assert.Equal(t, 2, members)
	assert.Equal(t, 2, relations)
	assert.NoFileExists(t, dbPath+".pre-restore")
}

func TestRestore_RejectsInvalidSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	dbPath := seedDatabase(t, dir)

	bogus := filepath.Join(dir, "bogus.db")
	require.NoError(t, os.WriteFile(bogus, []byte("not a database"), 0o600))

	assert.Error(t, backup.Restore(ctx, bogus, dbPath))

	members, _, err := backup.Verify(ctx, dbPath)
	require.NoError(t, err, "current database is untouched")
	assert.Equal(t, 2, members)
}
