package storage

// SchemaVersion is the current content database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements that create the content repository schema.
const Schema = `
-- Repository nodes (records, containers, other)
CREATE TABLE IF NOT EXISTS nodes (
    ref TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    kind TEXT NOT NULL,
    parent TEXT REFERENCES nodes(ref),

    -- Freeze state
    held_by INTEGER NOT NULL DEFAULT 0,
    inherited BOOLEAN NOT NULL DEFAULT 0,
    held_children INTEGER,

    created_time TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_path ON nodes(path);
CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent);

-- Holds
CREATE TABLE IF NOT EXISTS holds (
    ref TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    reason TEXT,
    created_time TIMESTAMP NOT NULL
);

-- Direct hold membership
CREATE TABLE IF NOT EXISTS hold_members (
    hold_ref TEXT NOT NULL REFERENCES holds(ref),
    item_ref TEXT NOT NULL REFERENCES nodes(ref),
    added_time TIMESTAMP NOT NULL,
    PRIMARY KEY (hold_ref, item_ref)
);

CREATE INDEX IF NOT EXISTS idx_hold_members_item ON hold_members(item_ref);

-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// InsertSchemaVersion records the schema version if it is not present.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion returns the highest applied schema version.
const GetSchemaVersion = `SELECT MAX(version) FROM schema_version`

const nodeColumns = `ref, name, path, kind, parent, held_by, inherited, held_children, created_time`
