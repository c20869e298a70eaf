package store

import (
	"database/sql"
)

type PgChatStore struct {
	conn *sql.DB
}

func NewPgChatStore(dsn string) (*PgChatStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgChatStore{conn: db}, nil
}

func (db *PgChatStore) Ping() error {
	return db.conn.Ping()
}

func (db *PgChatStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
