package cache

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT NOT NULL PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_kv_expires_at ON kv(expires_at);
`
