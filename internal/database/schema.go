package database

import (
	"context"

	"github.com/surrealdb/surrealdb.go"
)

const (
	accountTable = "account"
	messageTable = "message"
)

// schemaStatements define the tables and indexes the stores rely on. The unique
// username index is what turns a duplicate registration into ErrAlreadyExists.
var schemaStatements = []string{
	"DEFINE TABLE IF NOT EXISTS account SCHEMALESS",
	"DEFINE INDEX IF NOT EXISTS account_username ON TABLE account COLUMNS username UNIQUE",
	"DEFINE INDEX IF NOT EXISTS account_role ON TABLE account COLUMNS role",
	"DEFINE TABLE IF NOT EXISTS message SCHEMALESS",
	"DEFINE INDEX IF NOT EXISTS message_created_at ON TABLE message COLUMNS created_at",
}

// EnsureSchema applies the table and index definitions. It is idempotent.
func EnsureSchema(ctx context.Context, conn *Connection) error {
	return conn.WithConnection(ctx, func(db *surrealdb.DB) error {
		for _, stmt := range schemaStatements {
			if err := Execute(ctx, db, stmt, nil); err != nil {
				return WrapError(err, "apply schema")
			}
		}
		return nil
	})
}
