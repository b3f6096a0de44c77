package store

import (
	"database/sql"
	"fmt"
)

// CurrentVersion is the current schema version. Opening a database at a
// newer version fails; older versions are migrated forward.
const CurrentVersion = 2

// An empty-string project id denotes global scope throughout the schema.
// Composite primary keys cannot carry NULLs, so the sentinel keeps
// (name, project_id) uniqueness enforceable by SQLite.

// InitDB initializes a fresh database with the current schema.
func InitDB(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createVersionTable(tx); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}
	if err := createTables(tx); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if err := createIndexes(tx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	if err := setSchemaVersion(tx, CurrentVersion); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the schema version recorded in the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

// Migrate brings the database to CurrentVersion. Idempotent: a database
// already at the current version is left untouched.
func Migrate(db *sql.DB) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return InitDB(db)
	}
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	version, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}
	switch {
	case version == 0:
		return InitDB(db)
	case version == CurrentVersion:
		return nil
	case version > CurrentVersion:
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, CurrentVersion)
	default:
		return runMigrations(db, version, CurrentVersion)
	}
}

func createVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// createTables creates all tables.
func createTables(tx *sql.Tx) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id         TEXT PRIMARY KEY,
			path       TEXT UNIQUE NOT NULL,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS agents (
			name         TEXT NOT NULL,
			project_id   TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			status       TEXT NOT NULL DEFAULT 'active',
			dm_policy    TEXT NOT NULL DEFAULT 'open',
			discoverable TEXT NOT NULL DEFAULT 'public',
			created_at   TEXT NOT NULL,
			PRIMARY KEY (name, project_id)
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id              TEXT PRIMARY KEY,
			project_id      TEXT NOT NULL DEFAULT '',
			transcript_path TEXT NOT NULL DEFAULT '',
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS channels (
			id           TEXT PRIMARY KEY,
			channel_type TEXT NOT NULL,
			access_type  TEXT NOT NULL,
			scope        TEXT NOT NULL,
			project_id   TEXT NOT NULL DEFAULT '',
			name         TEXT NOT NULL DEFAULT '',
			description  TEXT NOT NULL DEFAULT '',
			created_by   TEXT NOT NULL DEFAULT '',
			is_default   INTEGER NOT NULL DEFAULT 0,
			archived     INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS channel_members (
			channel_id       TEXT NOT NULL,
			agent_name       TEXT NOT NULL,
			agent_project_id TEXT NOT NULL DEFAULT '',
			invited_by       TEXT NOT NULL DEFAULT 'self',
			source           TEXT NOT NULL DEFAULT 'explicit',
			can_leave        INTEGER NOT NULL DEFAULT 1,
			can_send         INTEGER NOT NULL DEFAULT 1,
			can_invite       INTEGER NOT NULL DEFAULT 0,
			can_manage       INTEGER NOT NULL DEFAULT 0,
			is_from_default  INTEGER NOT NULL DEFAULT 0,
			is_muted         INTEGER NOT NULL DEFAULT 0,
			joined_at        TEXT NOT NULL,
			PRIMARY KEY (channel_id, agent_name, agent_project_id),
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
			FOREIGN KEY (agent_name, agent_project_id) REFERENCES agents(name, project_id)
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id        TEXT NOT NULL,
			sender_name       TEXT NOT NULL,
			sender_project_id TEXT NOT NULL DEFAULT '',
			content           TEXT NOT NULL,
			metadata          TEXT,
			confidence        REAL,
			thread_id         INTEGER,
			timestamp         INTEGER NOT NULL,
			FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS project_links (
			project_a  TEXT NOT NULL,
			project_b  TEXT NOT NULL,
			direction  TEXT NOT NULL DEFAULT 'bidirectional',
			created_at TEXT NOT NULL,
			PRIMARY KEY (project_a, project_b),
			FOREIGN KEY (project_a) REFERENCES projects(id),
			FOREIGN KEY (project_b) REFERENCES projects(id)
		)`,

		// DM allow list consulted when dm_policy=restricted.
		`CREATE TABLE IF NOT EXISTS dm_permissions (
			agent_name       TEXT NOT NULL,
			agent_project_id TEXT NOT NULL DEFAULT '',
			other_name       TEXT NOT NULL,
			other_project_id TEXT NOT NULL DEFAULT '',
			permission       TEXT NOT NULL DEFAULT 'allow',
			created_at       TEXT NOT NULL,
			PRIMARY KEY (agent_name, agent_project_id, other_name, other_project_id)
		)`,

		`CREATE TABLE IF NOT EXISTS tool_calls (
			id               TEXT PRIMARY KEY,
			session_id       TEXT NOT NULL,
			tool_name        TEXT NOT NULL,
			tool_inputs_hash TEXT NOT NULL,
			tool_inputs      TEXT NOT NULL,
			created_at       TEXT NOT NULL
		)`,
	}

	for _, stmt := range tables {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// createIndexes creates all indexes.
func createIndexes(tx *sql.Tx) error {
	indexes := []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_channels_scope_name ON channels(scope, project_id, name) WHERE channel_type = 'channel'",
		"CREATE INDEX IF NOT EXISTS idx_channels_default ON channels(is_default) WHERE is_default = 1",
		"CREATE INDEX IF NOT EXISTS idx_channels_project ON channels(project_id)",

		"CREATE INDEX IF NOT EXISTS idx_members_agent ON channel_members(agent_name, agent_project_id)",
		"CREATE INDEX IF NOT EXISTS idx_members_default ON channel_members(channel_id) WHERE is_from_default = 1",

		"CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, id)",
		"CREATE INDEX IF NOT EXISTS idx_messages_time ON messages(channel_id, timestamp)",
		"CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_id)",
		"CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_name, sender_project_id)",

		"CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, tool_inputs_hash)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id)",
	}

	for _, stmt := range indexes {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// runMigrations applies migrations from startVersion to endVersion in one
// transaction. A failing migration rolls back and leaves the version
// untouched.
func runMigrations(db *sql.DB, startVersion, endVersion int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Migration from version 1 to 2: DM allow list.
	if startVersion < 2 && endVersion >= 2 {
		_, err = tx.Exec(`
			CREATE TABLE IF NOT EXISTS dm_permissions (
				agent_name       TEXT NOT NULL,
				agent_project_id TEXT NOT NULL DEFAULT '',
				other_name       TEXT NOT NULL,
				other_project_id TEXT NOT NULL DEFAULT '',
				permission       TEXT NOT NULL DEFAULT 'allow',
				created_at       TEXT NOT NULL,
				PRIMARY KEY (agent_name, agent_project_id, other_name, other_project_id)
			)
		`)
		if err != nil {
			return fmt.Errorf("create dm_permissions table: %w", err)
		}
	}

	_, err = tx.Exec("UPDATE schema_version SET version = ?", endVersion)
	if err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
