package damdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dnastack/ddap-admin/internal/domain/entities"
	"github.com/dnastack/ddap-admin/internal/domain/entities/dam"
	"github.com/dnastack/ddap-admin/internal/infrastructure/security"
)

// ErrNotFound is returned when a realm or entity does not exist.
var ErrNotFound = errors.New("not found")

// documentVersion is reported in every configuration document.
const documentVersion = "v0"

// collectionOrder fixes the order of collections in a document.
var collectionOrder = []string{
	dam.CollectionTrustedSources,
	dam.CollectionViews,
	dam.CollectionResources,
	dam.CollectionClients,
	dam.CollectionWorkflows,
}

// Repository reads and writes realm configuration.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db.DB}
}

// Document is the full configuration of one realm.
type Document struct {
	Version     string
	Revision    string
	Options     entities.Collection
	Collections map[string]entities.Collection
}

// MarshalJSON renders the document the way a DAM serves its config.
func (d Document) MarshalJSON() ([]byte, error) {
	out := entities.NewCollection()
	for _, field := range []struct {
		name  string
		value any
	}{
		{"version", d.Version},
		{"revision", d.Revision},
		{"options", d.Options},
	} {
		raw, err := json.Marshal(field.value)
		if err != nil {
			return nil, err
		}
		out = out.With(field.name, raw)
	}
	for _, name := range collectionOrder {
		raw, err := json.Marshal(d.Collections[name])
		if err != nil {
			return nil, err
		}
		out = out.With(name, raw)
	}
	return out.MarshalJSON()
}

// RealmExists reports whether realm has been created.
func (r *Repository) RealmExists(ctx context.Context, realm string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM realms WHERE name = ?`, realm).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check realm %s: %w", realm, err)
	}
	return n > 0, nil
}

// Document loads the configuration of realm.
func (r *Repository) Document(ctx context.Context, realm string) (*Document, error) {
	doc := &Document{
		Version:     documentVersion,
		Options:     entities.NewCollection(),
		Collections: make(map[string]entities.Collection, len(collectionOrder)),
	}

	var options string
	err := r.db.QueryRowContext(ctx, `SELECT revision, options_payload FROM realms WHERE name = ?`, realm).Scan(&doc.Revision, &options)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load realm %s: %w", realm, err)
	}
	if err := json.Unmarshal([]byte(options), &doc.Options); err != nil {
		return nil, fmt.Errorf("realm %s has corrupt options: %w", realm, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT collection, name, payload FROM config_entities WHERE realm = ? ORDER BY collection, position`, realm)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities for %s: %w", realm, err)
	}
	defer rows.Close()

	for rows.Next() {
		var collection, name, payload string
		if err := rows.Scan(&collection, &name, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		doc.Collections[collection] = doc.Collections[collection].With(name, json.RawMessage(payload))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entity rows: %w", err)
	}

	for _, name := range collectionOrder {
		if _, ok := doc.Collections[name]; !ok {
			doc.Collections[name] = entities.NewCollection()
		}
	}
	return doc, nil
}

// UpsertEntity stores payload under collection/name and returns the new
// realm revision. A new entity goes to the end of its collection.
func (r *Repository) UpsertEntity(ctx context.Context, realm, collection, name string, payload json.RawMessage) (string, error) {
	revision := newRevision()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := touchRealm(ctx, tx, realm, revision); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO config_entities (realm, collection, name, payload, revision, position, changed)
			VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM config_entities WHERE realm = ? AND collection = ?), ?)
			ON CONFLICT(realm, collection, name) DO UPDATE SET
				payload = excluded.payload,
				revision = excluded.revision,
				changed = excluded.changed`,
			realm, collection, name, string(payload), revision, realm, collection, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to upsert %s/%s: %w", collection, name, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return revision, nil
}

// DeleteEntity removes collection/name from realm.
func (r *Repository) DeleteEntity(ctx context.Context, realm, collection, name string) (string, error) {
	revision := newRevision()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM config_entities WHERE realm = ? AND collection = ? AND name = ?`, realm, collection, name)
		if err != nil {
			return fmt.Errorf("failed to delete %s/%s: %w", collection, name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return touchRealm(ctx, tx, realm, revision)
	})
	if err != nil {
		return "", err
	}
	return revision, nil
}

// PutOptions replaces the options of realm.
func (r *Repository) PutOptions(ctx context.Context, realm string, payload json.RawMessage) (string, error) {
	revision := newRevision()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := touchRealm(ctx, tx, realm, revision); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE realms SET options_payload = ? WHERE name = ?`, string(payload), realm); err != nil {
			return fmt.Errorf("failed to update options of %s: %w", realm, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return revision, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// touchRealm creates realm if needed and stamps it with revision.
func touchRealm(ctx context.Context, tx *sql.Tx, realm, revision string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO realms (name, revision, changed) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET revision = excluded.revision, changed = excluded.changed`,
		realm, revision, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to stamp realm %s: %w", realm, err)
	}
	return nil
}

func newRevision() string {
	return security.NewID()
}
