package storage

import (
	"context"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/wifi-csi/internal/csi"
)

// Store provides an interface for managing CSI collection data. It handles sessions and
// the samples recorded in them. All operations that write to the database should be
// considered atomic.
type Store interface {
	// CreateSession initializes a new collection session and returns its unique identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - info: Source, label and description of the session
	//   - config: Optional collector configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - sessionID: Unique identifier for the created session
	//   - error: If session creation fails or context is cancelled
	CreateSession(ctx context.Context, info SessionInfo, config any) (sessionID int64, err error)

	// Session retrieves a specific collection session by its ID.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Unique session identifier
	//
	// Returns:
	//   - session: Pointer to session data
	//   - error: ErrNoData if the session does not exist, or if retrieval fails
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all collection sessions stored in the database.
	// Results are ordered by start time in ascending order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - sessions: Slice of pointers to session data
	//   - error: If retrieval fails or context is cancelled
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreSamples saves samples for a specific session in arrival order. All samples are
	// stored in a single transaction.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session the samples belong to
	//   - samples: Samples to store; each must pass csi.Sample.Validate
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	StoreSamples(ctx context.Context, sessionID int64, samples []csi.Sample) error

	// ReadSamples creates an iterator over the samples of a session, in the order they
	// were stored.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sessionID: ID of the session to read
	//   - opts: Optional filters (WithLabel, WithTimestampRange)
	//
	// Returns:
	//   - reader: Iterator that must be closed after use
	//   - error: If the session does not exist or the query fails
	ReadSamples(ctx context.Context, sessionID int64, opts ...ReaderOption) (SampleReader, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	//
	// Returns:
	//   - error: If closing connections fails
	Close() error
}
