package storage

import (
	"database/sql"
	"time"
)

// Session describes one collection session.
type Session struct {
	ID          int64
	UUID        string
	StartTime   time.Time
	Source      string  // Device link the samples came from, e.g. "serial:/dev/ttyUSB0", "mqtt", "synthetic"
	Label       *string // Activity label the session was recorded under, if any
	Description *string
	Config      *string // JSON encoded collector configuration
	NumSamples  int
}

// SessionInfo holds the descriptive fields of a new session.
type SessionInfo struct {
	Source      string
	Label       string
	Description string
}

type sampleRow struct {
	SessionID      int64
	DeviceTS       int64
	RSSI           int64
	NumSubcarriers int64
	Amplitude      string
	Phase          string
	Label          sql.NullString
	Description    sql.NullString
	ReceivedAt     sql.NullTime
}

type sessionRow struct {
	ID          int64
	UUID        string
	StartTime   time.Time
	Source      string
	Label       sql.NullString
	Description sql.NullString
	Config      sql.NullString
	NumSamples  int
}

func (r *sessionRow) toSession() *Session {
	sess := Session{
		ID:         r.ID,
		UUID:       r.UUID,
		StartTime:  r.StartTime,
		Source:     r.Source,
		NumSamples: r.NumSamples,
	}
	if r.Label.Valid {
		sess.Label = &r.Label.String
	}
	if r.Description.Valid {
		sess.Description = &r.Description.String
	}
	if r.Config.Valid {
		sess.Config = &r.Config.String
	}
	return &sess
}

// SyntheticSource is the session source of generated datasets.
const SyntheticSource = "synthetic"
