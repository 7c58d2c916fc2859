package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
)

func TestLocal_RoundTripsIDMap(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(filepath.Join(dir, "current"))
	ctx := context.Background()

	idMap := []catalog.IDMapEntry{{ID: "620"}, {ID: "400", ITADID: "abc-123"}}
	require.NoError(t, l.PutIDMap(ctx, idMap))

	got, err := l.GetIDMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, idMap, got)
}

func TestLocal_GetIDMap_MissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(filepath.Join(dir, "current"))

	got, err := l.GetIDMap(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocal_RoundTripsGamesData(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(filepath.Join(dir, "current"))
	ctx := context.Background()

	env := catalog.Envelope{
		Meta:  catalog.Meta{DataVersion: 1, Source: "test"},
		Games: []catalog.GameRecord{{ID: "620", Title: "Portal 2"}},
	}
	require.NoError(t, l.PutGamesData(ctx, env))

	got, err := l.GetGamesData(ctx)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestLocal_GetGamesData_ToleratesBareList(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(filepath.Join(dir, "current"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "current"), 0o755))
	bare := `[{"id":"620","title":"Portal 2"}]`
	require.NoError(t, os.WriteFile(l.gamesPath(), []byte(bare), 0o644))

	got, err := l.GetGamesData(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Games, 1)
	assert.Equal(t, "Portal 2", got.Games[0].Title)
}

func TestLocal_Backup_WritesTimestampedFile(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(filepath.Join(dir, "current"))
	env := catalog.Envelope{Games: []catalog.GameRecord{{ID: "620"}}}

	require.NoError(t, l.Backup(context.Background(), env))

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, `^games_\d{4}_\d{2}_\d{2}_\d{6}\.json$`, entries[0].Name())
}
