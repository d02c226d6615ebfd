package damdb

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnastack/ddap-admin/internal/domain/entities/dam"
)

func openMemory(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(context.Background(), Config{SQLitePath: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func TestConfig_UseTurso(t *testing.T) {
	assert.False(t, Config{SQLitePath: "x.db"}.UseTurso())
	assert.False(t, Config{TursoURL: "libsql://db.turso.io"}.UseTurso())
	assert.True(t, Config{TursoURL: "libsql://db.turso.io", TursoToken: "t"}.UseTurso())
}

func TestOpen_FileDatabase(t *testing.T) {
	path := t.TempDir() + "/nested/fakedam.db"
	db, err := Open(context.Background(), Config{SQLitePath: path, MaxOpenConns: 2}, nil)
	require.NoError(t, err)
	defer db.Close()

	assert.False(t, db.UseTurso)
	assert.NoError(t, db.Check(context.Background()))
}

func TestRepository_DocumentMissingRealm(t *testing.T) {
	repo := openMemory(t)

	_, err := repo.Document(context.Background(), "master")
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := repo.RealmExists(context.Background(), "master")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRepository_SeedRealm(t *testing.T) {
	ctx := context.Background()
	repo := openMemory(t)

	require.NoError(t, NewTableCreator().SeedRealm(ctx, repo, "master"))
	doc, err := repo.Document(ctx, "master")
	require.NoError(t, err)

	assert.Equal(t, "v0", doc.Version)
	assert.NotEmpty(t, doc.Revision)
	assert.Equal(t, []string{"ga4gh-apis", "thousand-genomes"}, doc.Collections[dam.CollectionResources].Names())
	assert.Equal(t, []string{"elixir_passports"}, doc.Collections[dam.CollectionTrustedSources].Names())
	assert.Contains(t, doc.Options.Names(), "readOnlyMasterRealm")

	// seeding twice leaves the realm alone
	revision := doc.Revision
	require.NoError(t, NewTableCreator().SeedRealm(ctx, repo, "master"))
	again, err := repo.Document(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, revision, again.Revision)
}

func TestRepository_UpsertKeepsPosition(t *testing.T) {
	ctx := context.Background()
	repo := openMemory(t)

	_, err := repo.UpsertEntity(ctx, "master", "views", "b", json.RawMessage(`{"serviceTemplate":"gcs"}`))
	require.NoError(t, err)
	first, err := repo.UpsertEntity(ctx, "master", "views", "a", json.RawMessage(`{"serviceTemplate":"gcs"}`))
	require.NoError(t, err)
	second, err := repo.UpsertEntity(ctx, "master", "views", "b", json.RawMessage(`{"serviceTemplate":"beacon"}`))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	doc, err := repo.Document(ctx, "master")
	require.NoError(t, err)
	views := doc.Collections["views"]
	assert.Equal(t, []string{"b", "a"}, views.Names())
	raw, _ := views.Get("b")
	assert.JSONEq(t, `{"serviceTemplate":"beacon"}`, string(raw))
	assert.Equal(t, second, doc.Revision)
}

func TestRepository_DeleteEntity(t *testing.T) {
	ctx := context.Background()
	repo := openMemory(t)

	_, err := repo.UpsertEntity(ctx, "master", "clients", "c", json.RawMessage(`{}`))
	require.NoError(t, err)

	_, err = repo.DeleteEntity(ctx, "master", "clients", "c")
	require.NoError(t, err)
	_, err = repo.DeleteEntity(ctx, "master", "clients", "c")
	assert.ErrorIs(t, err, ErrNotFound)

	doc, err := repo.Document(ctx, "master")
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Collections["clients"].Len())
}

func TestDocument_MarshalJSON(t *testing.T) {
	ctx := context.Background()
	repo := openMemory(t)

	_, err := repo.PutOptions(ctx, "other", json.RawMessage(`{"readOnlyMasterRealm":true}`))
	require.NoError(t, err)
	_, err = repo.UpsertEntity(ctx, "other", "workflows", "w", json.RawMessage(`{"wesView":"v","wdl":"task t {}"}`))
	require.NoError(t, err)

	doc, err := repo.Document(ctx, "other")
	require.NoError(t, err)
	body, err := json.Marshal(doc)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"version": "v0",
		"revision": "`+doc.Revision+`",
		"options": {"readOnlyMasterRealm": true},
		"trustedSources": {},
		"views": {},
		"resources": {},
		"clients": {},
		"workflows": {"w": {"wesView": "v", "wdl": "task t {}"}}
	}`, string(body))
}
