package storage

const (
	initSchemaSQL = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS sessions
(
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid        TEXT     NOT NULL UNIQUE,
    start_time  DATETIME NOT NULL,
    source      TEXT     NOT NULL,
    label       TEXT,
    description TEXT,
    config      TEXT
);

CREATE TABLE IF NOT EXISTS samples
(
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id      INTEGER NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    device_ts       INTEGER NOT NULL,
    rssi            INTEGER NOT NULL,
    num_subcarriers INTEGER NOT NULL,
    amplitude       TEXT    NOT NULL,
    phase           TEXT    NOT NULL,
    label           TEXT,
    description     TEXT,
    received_at     DATETIME
);`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_samples_session_label ON samples (session_id, label);
CREATE INDEX IF NOT EXISTS idx_samples_session_ts ON samples (session_id, device_ts);`

	insertSessionSQL = `
INSERT INTO sessions (uuid,
                      start_time,
                      source,
                      label,
                      description,
                      config)
VALUES (?, ?, ?, ?, ?, ?)`

	selectSessionSQL = `
SELECT s.id,
       s.uuid,
       s.start_time,
       s.source,
       s.label,
       s.description,
       s.config,
       (SELECT COUNT(*) FROM samples WHERE session_id = s.id)
FROM sessions s
WHERE s.id = ?`

	selectSessionsSQL = `
SELECT s.id,
       s.uuid,
       s.start_time,
       s.source,
       s.label,
       s.description,
       s.config,
       (SELECT COUNT(*) FROM samples WHERE session_id = s.id)
FROM sessions s
ORDER BY s.start_time, s.id`

	selectSessionLabelsSQL = `
SELECT DISTINCT label
FROM samples
WHERE session_id = ?
  AND label IS NOT NULL
  AND label != ''
ORDER BY label`

	insertSamplesSQL = `
INSERT INTO samples (session_id,
                     device_ts,
                     rssi,
                     num_subcarriers,
                     amplitude,
                     phase,
                     label,
                     description,
                     received_at)
VALUES `

	insertSamplesPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"

	// selectSamplesSQL is completed by the reader with its filter clauses.
	selectSamplesSQL = `
SELECT device_ts,
       rssi,
       num_subcarriers,
       amplitude,
       phase,
       label,
       description,
       received_at
FROM samples
WHERE session_id = ?`
)

// sqlite limits the number of host parameters per statement; 9 columns per row keeps a
// batch of this size well below the limit.
const maxInsertBatch = 500
