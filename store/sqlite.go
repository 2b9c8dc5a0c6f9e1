package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		name TEXT,
		method TEXT,
		url TEXT,
		body TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS request_headers (
		request_id TEXT,
		position INTEGER,
		name TEXT,
		value TEXT,
		PRIMARY KEY (request_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS responses (
		id TEXT PRIMARY KEY,
		request_id TEXT,
		environment TEXT,
		created_at INTEGER,
		status_code INTEGER,
		error TEXT
	)`,
	"CREATE INDEX IF NOT EXISTS responses_latest_idx ON responses (request_id, environment, created_at)",
	`CREATE TABLE IF NOT EXISTS response_headers (
		response_id TEXT,
		position INTEGER,
		name TEXT,
		value TEXT,
		PRIMARY KEY (response_id, position)
	)`,
	"PRAGMA journal_mode=WAL",
}

type SQLiteStore struct {
	db         *sql.DB
	writeMutex *sync.Mutex
}

// NewSQLiteStore creates a new store with the given filename as the db.
// If file name is empty, a new in-memory db is opened.
func NewSQLiteStore(filename string) (SQLiteStore, error) {
	if filename == "" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return SQLiteStore{}, fmt.Errorf("open %s: %w", filename, err)
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return SQLiteStore{}, fmt.Errorf("create schema: %w", err)
		}
	}
	return SQLiteStore{
		db:         db,
		writeMutex: &sync.Mutex{},
	}, nil
}

func (s SQLiteStore) Request(ctx context.Context, id string) (*Request, error) {
	req := Request{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, method, url, body FROM requests WHERE id = ?", id,
	).Scan(&req.Name, &req.Method, &req.URL, &req.Body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	req.Headers, err = s.headers(ctx,
		"SELECT name, value FROM request_headers WHERE request_id = ? ORDER BY position", id)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s SQLiteStore) PutRequest(ctx context.Context, req Request) error {
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO requests (id, name, method, url, body) VALUES (?, ?, ?, ?, ?)",
		req.ID, req.Name, req.Method, req.URL, req.Body,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM request_headers WHERE request_id = ?", req.ID); err != nil {
		return err
	}
	for i, h := range req.Headers {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO request_headers (request_id, position, name, value) VALUES (?, ?, ?, ?)",
			req.ID, i, h.Name, h.Value,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s SQLiteStore) LatestResponse(ctx context.Context, requestID, environment string) (*Response, error) {
	res := Response{RequestID: requestID, Environment: environment}
	var createdAt int64
	// rowid breaks ties between responses created within the same millisecond
	err := s.db.QueryRowContext(ctx, `SELECT id, created_at, status_code, error
		FROM responses WHERE request_id = ? AND environment = ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		requestID, environment,
	).Scan(&res.ID, &createdAt, &res.StatusCode, &res.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	res.CreatedAt = time.UnixMilli(createdAt)
	res.Headers, err = s.headers(ctx,
		"SELECT name, value FROM response_headers WHERE response_id = ? ORDER BY position", res.ID)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (s SQLiteStore) PutResponse(ctx context.Context, res Response) error {
	res = res.withID()
	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO responses
		(id, request_id, environment, created_at, status_code, error) VALUES (?, ?, ?, ?, ?, ?)`,
		res.ID, res.RequestID, res.Environment, res.CreatedAt.UnixMilli(), res.StatusCode, res.Error,
	); err != nil {
		return err
	}
	for i, h := range res.Headers {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO response_headers (response_id, position, name, value) VALUES (?, ?, ?, ?)",
			res.ID, i, h.Name, h.Value,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s SQLiteStore) Close() error {
	return s.db.Close()
}

func (s SQLiteStore) headers(ctx context.Context, query string, id string) ([]Header, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	headers := make([]Header, 0)
	for rows.Next() {
		var h Header
		if err := rows.Scan(&h.Name, &h.Value); err != nil {
			return nil, err
		}
		headers = append(headers, h)
	}
	return headers, rows.Err()
}
