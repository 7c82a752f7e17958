// Package sqlite provides a storage.Repository backed by a private in-memory
// SQLite database. Nothing is written to disk; the database disappears when
// the repository is closed or the process exits.
package sqlite

// Schema creates the two stores. Memories reference their owning session
// with ON DELETE CASCADE so a session delete can never leave orphans. The
// seq columns record insertion order. created_at holds unix microseconds so
// stored instants carry no zone and survive DST transitions unchanged.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    -- unix microseconds
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    content TEXT NOT NULL,
    -- unix microseconds
    created_at INTEGER NOT NULL,
    -- JSON array of strings
    tags TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id, seq);
`
