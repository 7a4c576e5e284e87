package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

var _ Store = (*SqliteStore)(nil)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store backed by the Sqlite database at dbPath. Connections are
// opened lazily; the schema is created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func encodeConfig(config any) (sql.NullString, error) {
	switch v := config.(type) {
	case nil:
		return sql.NullString{}, nil
	case string:
		return sql.NullString{String: v, Valid: true}, nil
	case []byte:
		return sql.NullString{String: string(v), Valid: true}, nil
	default:
		p, err := json.Marshal(v)
		if err != nil {
			return sql.NullString{}, fmt.Errorf("marshaling config: %w", err)
		}
		return sql.NullString{String: string(p), Valid: true}, nil
	}
}

func (s *SqliteStore) CreateSession(ctx context.Context, info SessionInfo, config any) (sessionID int64, err error) {
	if info.Source == "" {
		return 0, errors.New("session source is required")
	}

	configData, err := encodeConfig(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		uuid.NewString(),
		time.Now().UTC(),
		info.Source,
		toNullString(info.Label),
		toNullString(info.Description),
		configData,
	)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func scanSession(row interface{ Scan(dest ...any) error }) (*Session, error) {
	var r sessionRow
	if err := row.Scan(&r.ID, &r.UUID, &r.StartTime, &r.Source, &r.Label, &r.Description, &r.Config, &r.NumSamples); err != nil {
		return nil, err
	}
	return r.toSession(), nil
}

func querySession(ctx context.Context, db *sql.DB, id int64) (session *Session, err error) {
	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	session, err = scanSession(stmt.QueryRowContext(ctx, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: session %d not found", ErrNoData, id)
	case err != nil:
		return nil, fmt.Errorf("scanning session: %w", err)
	}
	return session, nil
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (*Session, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return querySession(ctx, db, id)
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

// SessionLabels returns the distinct sample labels recorded in a session, sorted.
func (s *SqliteStore) SessionLabels(ctx context.Context, sessionID int64) (labels []string, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionLabelsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying labels: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var label string
		if err = rows.Scan(&label); err != nil {
			err = fmt.Errorf("scanning label: %w", err)
			return
		}
		labels = append(labels, label)
	}
	err = rows.Err()
	return
}

// StoreSamples writes samples in batches of multi-row inserts inside one transaction.
func (s *SqliteStore) StoreSamples(ctx context.Context, sessionID int64, samples []csi.Sample) (err error) {
	if len(samples) == 0 {
		return
	}

	rows := make([]*sampleRow, 0, len(samples))
	for i := range samples {
		if err = samples[i].Validate(); err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		row, err := toSampleRow(sessionID, &samples[i])
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		rows = append(rows, row)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	for batch := range slices.Chunk(rows, maxInsertBatch) {
		values := make([]any, 0, len(batch)*9)

		var sb strings.Builder
		sb.WriteString(insertSamplesSQL)

		for i, data := range batch {
			values = append(values,
				data.SessionID,
				data.DeviceTS,
				data.RSSI,
				data.NumSubcarriers,
				data.Amplitude,
				data.Phase,
				data.Label,
				data.Description,
				data.ReceivedAt,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(insertSamplesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting samples: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// ReadSamples creates a SampleReader over the samples of a session. The reader must be
// closed after use to release database resources. Each reader instance should only be
// used from a single goroutine.
func (s *SqliteStore) ReadSamples(ctx context.Context, sessionID int64, opts ...ReaderOption) (SampleReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteSampleReader(ctx, db, sessionID, opts...)
}

// LoadDataset reads the samples of a session into a dataset. The dataset metadata records
// the session start time and description.
func (s *SqliteStore) LoadDataset(ctx context.Context, sessionID int64, opts ...ReaderOption) (ds *csi.Dataset, err error) {
	reader, err := s.ReadSamples(ctx, sessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer closeWithError(reader, &err)

	var samples []csi.Sample
	for reader.Next(ctx) {
		samples = append(samples, *reader.Current())
	}
	if err = reader.Error(); err != nil {
		return nil, fmt.Errorf("reading samples: %w", err)
	}

	sess := reader.Session()
	meta := csi.Metadata{
		DatasetID:   sess.UUID,
		CollectedAt: sess.StartTime.UTC().Format(time.RFC3339),
	}
	if sess.Description != nil {
		meta.Description = *sess.Description
	}
	if sess.Source == SyntheticSource {
		meta.Synthetic = true
	}

	return csi.NewDataset(meta, samples), nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
