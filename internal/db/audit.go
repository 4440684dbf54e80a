package db

import (
	"database/sql"
	"time"
)

// InsertAuditEntry records an integration occurrence for operators.
func InsertAuditEntry(d *sql.DB, applicationID int64, operation, message string) error {
	_, err := d.Exec(
		"INSERT INTO audit_log (application_id, operation, message, created_at) VALUES (?, ?, ?, ?)",
		applicationID, operation, message, time.Now().Unix(),
	)
	return err
}
