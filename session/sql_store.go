package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	// Registers the cgo-free "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/opd-ai/courier/limits"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS courier_sessions (
	client_id  TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// sessionRow mirrors one courier_sessions row.
type sessionRow struct {
	ClientID  string `db:"client_id"`
	Data      []byte `db:"data"`
	UpdatedAt int64  `db:"updated_at"`
}

// SQLStore keeps credentials in a SQLite database, one row per client id.
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQLStore opens the SQLite database at path and creates the schema.
func OpenSQLStore(ctx context.Context, path string) (*SQLStore, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(30000)"
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session schema: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "OpenSQLStore",
		"path":     path,
	}).Info("Opened SQLite session store")
	return &SQLStore{db: db}, nil
}

// Load implements Store.
func (s *SQLStore) Load(ctx context.Context, clientID string) ([]byte, error) {
	if err := checkArgs(ctx, clientID); err != nil {
		return nil, err
	}
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		`SELECT client_id, data, updated_at FROM courier_sessions WHERE client_id = ?`, clientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return row.Data, nil
}

// Save implements Store.
func (s *SQLStore) Save(ctx context.Context, clientID string, data []byte) error {
	if err := checkArgs(ctx, clientID); err != nil {
		return err
	}
	if err := limits.ValidateCredential(data); err != nil {
		return err
	}
	row := sessionRow{ClientID: clientID, Data: data, UpdatedAt: time.Now().Unix()}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO courier_sessions (client_id, data, updated_at)
		VALUES (:client_id, :data, :updated_at)
		ON CONFLICT(client_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`, row)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function":  "SQLStore.Save",
		"client_id": clientID,
		"size":      len(data),
	}).Debug("Session credential saved")
	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, clientID string) error {
	if err := checkArgs(ctx, clientID); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM courier_sessions WHERE client_id = ?`, clientID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function":  "SQLStore.Delete",
		"client_id": clientID,
	}).Info("Session credential deleted")
	return nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
