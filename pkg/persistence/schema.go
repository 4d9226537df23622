package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the
// current version, creating it from scratch when the database is empty.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion == 0 {
		if err := createSchema(db); err != nil {
			return err
		}
		return setSchemaVersion(db, CurrentSchemaVersion)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 1:
		return nil // base schema, created by createSchema
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds the per-request document artifact path.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE requests ADD COLUMN doc_path TEXT NOT NULL DEFAULT ''",
	}
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}
	return nil
}

// createSchema creates all required tables and indices.
func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			version TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 5,
			phase TEXT NOT NULL DEFAULT 'plan',
			description TEXT NOT NULL DEFAULT '',
			code_dir TEXT NOT NULL DEFAULT '',
			prompt_text TEXT NOT NULL DEFAULT '',
			claude_md_ref TEXT NOT NULL DEFAULT '',
			commit_enabled INTEGER NOT NULL DEFAULT 1,
			commit_branch_mode TEXT NOT NULL DEFAULT '',
			commit_branch_name TEXT NOT NULL DEFAULT '',
			touched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'new_feature',
			status TEXT NOT NULL DEFAULT 'tbd',
			phase TEXT NOT NULL DEFAULT 'plan',
			prompt TEXT NOT NULL DEFAULT '',
			priority INTEGER NOT NULL DEFAULT 5,
			code_dir TEXT NOT NULL DEFAULT '',
			plan_path TEXT NOT NULL DEFAULT '',
			testplan_path TEXT NOT NULL DEFAULT '',
			doc_path TEXT NOT NULL DEFAULT '',
			test_retries INTEGER NOT NULL DEFAULT 0,
			error_text TEXT NOT NULL DEFAULT '',
			commit_enabled INTEGER NOT NULL DEFAULT 1,
			commit_branch TEXT NOT NULL DEFAULT '',
			touched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS infrastructure (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			provider TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			UNIQUE (project_id, type),
			FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS request_infrastructure (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			request_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			provider TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			note TEXT NOT NULL DEFAULT '',
			UNIQUE (request_id, type),
			FOREIGN KEY (request_id) REFERENCES requests(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS learnings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL,
			description TEXT NOT NULL,
			touched_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS infra_options (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			provider TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			UNIQUE (type, provider)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_requests_project ON requests(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_phase ON requests(phase)`,
		`CREATE INDEX IF NOT EXISTS idx_learnings_project ON learnings(project_id)`,
	}

	for _, statement := range schema {
		if _, err := db.Exec(statement); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return seedInfraOptions(db)
}

// seedInfraOptions populates the wizard's infrastructure catalog. Idempotent.
func seedInfraOptions(db *sql.DB) error {
	options := []InfraOption{
		{Type: InfraCompute, Provider: ProviderLocal, Description: "Run on the local machine"},
		{Type: InfraCompute, Provider: ProviderContainer, Description: "Run in a container"},
		{Type: InfraCompute, Provider: ProviderAWS, Description: "AWS compute (EC2, Lambda, ECS)"},
		{Type: InfraCompute, Provider: ProviderGCP, Description: "GCP compute (GCE, Cloud Run)"},
		{Type: InfraCompute, Provider: ProviderAzure, Description: "Azure compute (VMs, Functions)"},
		{Type: InfraStorage, Provider: ProviderLocal, Description: "Local filesystem or SQLite"},
		{Type: InfraStorage, Provider: ProviderContainer, Description: "Containerized database"},
		{Type: InfraStorage, Provider: ProviderAWS, Description: "AWS storage (S3, RDS, DynamoDB)"},
		{Type: InfraStorage, Provider: ProviderGCP, Description: "GCP storage (GCS, Cloud SQL)"},
		{Type: InfraStorage, Provider: ProviderAzure, Description: "Azure storage (Blob, Cosmos)"},
		{Type: InfraQueue, Provider: ProviderLocal, Description: "In-process queue"},
		{Type: InfraQueue, Provider: ProviderContainer, Description: "Containerized broker"},
		{Type: InfraQueue, Provider: ProviderAWS, Description: "AWS messaging (SQS, SNS)"},
		{Type: InfraQueue, Provider: ProviderGCP, Description: "GCP Pub/Sub"},
		{Type: InfraQueue, Provider: ProviderAzure, Description: "Azure Service Bus"},
		{Type: InfraAccess, Provider: ProviderLocal, Description: "No external access"},
		{Type: InfraAccess, Provider: ProviderAWS, Description: "AWS IAM / API Gateway"},
		{Type: InfraAccess, Provider: ProviderGCP, Description: "GCP IAM / API Gateway"},
		{Type: InfraAccess, Provider: ProviderAzure, Description: "Azure AD / API Management"},
		{Type: InfraUI, Provider: ProviderLocal, Description: "Local web or terminal UI"},
		{Type: InfraUI, Provider: ProviderContainer, Description: "Containerized web UI"},
		{Type: InfraUI, Provider: ProviderAWS, Description: "AWS-hosted frontend"},
		{Type: InfraUI, Provider: ProviderGCP, Description: "GCP-hosted frontend"},
		{Type: InfraUI, Provider: ProviderAzure, Description: "Azure-hosted frontend"},
	}

	for i := range options {
		opt := &options[i]
		_, err := db.Exec(
			`INSERT INTO infra_options (type, provider, description) VALUES (?, ?, ?)
			 ON CONFLICT(type, provider) DO NOTHING`,
			opt.Type, opt.Provider, opt.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to seed infra option %s/%s: %w", opt.Type, opt.Provider, err)
		}
	}
	return nil
}

// getSchemaVersion returns the current schema version, 0 for an empty database.
func getSchemaVersion(db *sql.DB) (int, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, version)
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}
