package driver

import "context"

// DB abstracts a database backend that can parse statements. Implementations
// exist for MySQL and PostgreSQL; both hand back the same Cursor and
// PreparedStatement contracts so everything above the driver stays
// backend-neutral.
type DB interface {
	// Name returns the backend name ("mysql", "postgres").
	Name() string

	// Ping verifies the connection to the database.
	Ping(ctx context.Context) error

	// Prepare parses a plain statement with ? placeholders.
	Prepare(ctx context.Context, query string) (PreparedStatement, error)

	// PrepareCall parses a procedure call. The backend cannot discover
	// parameter directions on its own, so the caller declares them.
	PrepareCall(ctx context.Context, query string, params []ParamInfo) (PreparedStatement, error)

	// Close closes the database connection.
	Close() error
}

// Open returns the backend registered under name, connected lazily with dsn.
func Open(name, dsn string) (DB, error) {
	switch name {
	case "", "mysql":
		return NewMySQLDriver(dsn), nil
	case "postgres":
		return NewPostgresDriver(dsn), nil
	}
	return nil, errUnknownBackend(name)
}

type errUnknownBackend string

func (e errUnknownBackend) Error() string {
	return "driver: unknown backend " + string(e)
}
