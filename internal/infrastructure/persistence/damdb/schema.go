package damdb

import (
	"context"
	"database/sql"
	"fmt"
)

// TableCreator builds the emulator schema and its demo content.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and indexes.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// SeedRealm fills an empty realm with a small working configuration.
// A realm that already holds entities is left alone.
func (tc *TableCreator) SeedRealm(ctx context.Context, repo *Repository, realm string) error {
	var count int
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM config_entities WHERE realm = ?`, realm).Scan(&count); err != nil {
		return fmt.Errorf("failed to check realm %s: %w", realm, err)
	}
	if count > 0 {
		return nil
	}

	for _, e := range seedEntities {
		if _, err := repo.UpsertEntity(ctx, realm, e.collection, e.name, []byte(e.payload)); err != nil {
			return fmt.Errorf("failed to seed %s/%s: %w", e.collection, e.name, err)
		}
	}
	if _, err := repo.PutOptions(ctx, realm, []byte(seedOptions)); err != nil {
		return fmt.Errorf("failed to seed options: %w", err)
	}
	return nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS realms (name TEXT PRIMARY KEY, revision TEXT NOT NULL, options_payload TEXT NOT NULL DEFAULT '{}', changed TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)`,
	`CREATE TABLE IF NOT EXISTS config_entities (realm TEXT NOT NULL REFERENCES realms(name), collection TEXT NOT NULL, name TEXT NOT NULL, payload TEXT NOT NULL, revision TEXT NOT NULL, position INTEGER NOT NULL, changed TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP, PRIMARY KEY (realm, collection, name))`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_config_entities_collection ON config_entities(realm, collection, position)`,
}

type seedEntity struct {
	collection, name, payload string
}

var seedEntities = []seedEntity{
	{"trustedSources", "elixir_passports", `{"sources":["https://login.elixir-czech.org/oidc/"],"visaTypes":["AffiliationAndRole","ControlledAccessGrants"],"ui":{"label":"ELIXIR Passports","description":"Visas issued by the ELIXIR AAI"}}`},
	{"views", "gcs_read", `{"serviceTemplate":"gcs","version":"Phase 3","topic":"variants","fidelity":"normalized","contentTypes":["application/bam"],"ui":{"label":"GCS read","description":"Read access to the bucket"}}`},
	{"resources", "ga4gh-apis", `{"views":{"gcs_read":{"serviceTemplate":"gcs","interfaces":{"http:gcp:gs":{"uri":["https://storage.googleapis.com/ga4gh-apis-controlled-access"]}},"ui":{"label":"GCS read"}}},"maxTokenTtl":"1h","ui":{"label":"GA4GH APIs","description":"Sample data published by the GA4GH"}}`},
	{"resources", "thousand-genomes", `{"views":{"discovery":{"serviceTemplate":"beacon","interfaces":{"http:beacon":{"uri":["https://beacon.example.org/query"]}},"ui":{"label":"Beacon discovery"}}},"ui":{"label":"1000 Genomes","description":"Phase 3 release"}}`},
	{"clients", "ddap-admin", `{"clientId":"ddap-admin","redirectUris":["http://localhost:4200/"],"scope":"openid profile","grantTypes":["authorization_code"],"responseTypes":["code"],"ui":{"label":"Admin console","description":"This console"}}`},
	{"workflows", "md5sum", `{"wesView":"gcs_read","wdl":"task md5 { File inputFile command { md5sum ${inputFile} } }","inputs":{"md5.inputFile":"gs://bucket/sample.bam"},"ui":{"label":"MD5 checksum","description":"Checksums an input file"}}`},
}

const seedOptions = `{"readOnlyMasterRealm":false,"gcpManagedKeysMaxRequestedTtl":"7d","gcpManagedKeysPerAccount":8,"gcpServiceAccountProject":"ddap-demo"}`
