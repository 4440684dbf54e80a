// Package ledger keeps the append-only status event log of integration
// progress per application.
//
// The ledger is descriptive: it records whatever transition actually
// happened and validates nothing against a transition table. The normal
// lifecycle is
//
//	submitted_but_not_sent → request_to_open_case_sent → case_opened →
//	decision_proposal_sent → decision_proposal_accepted →
//	update_request_sent → signed_in_ahjo → details_received_from_ahjo
//
// with a parallel cancellation branch
//
//	case_opened → delete_request_sent → delete_request_received
//
// Events are never mutated or deleted. A scheduled run and an inbound
// callback may append concurrently against the same application;
// interleaved events are acceptable.
package ledger

import (
	"database/sql"
	"time"

	"github.com/citybenefits/casebridge/internal/models"
)

// Ledger provides append and projection over the status_events table.
type Ledger struct {
	DB *sql.DB
}

// New returns a Ledger over the given database.
func New(d *sql.DB) *Ledger {
	return &Ledger{DB: d}
}

// Append inserts a status event for the application. No validation is
// performed against the previous state.
func (l *Ledger) Append(applicationID int64, status string) error {
	_, err := l.DB.Exec(
		"INSERT INTO status_events (application_id, status, created_at) VALUES (?, ?, ?)",
		applicationID, status, time.Now().UTC().Unix(),
	)
	return err
}

// Current returns the application's latest status, or the empty string when
// no event exists. Insertion order breaks same-second ties.
func (l *Ledger) Current(applicationID int64) (string, error) {
	row := l.DB.QueryRow(`
		SELECT status FROM status_events
		WHERE application_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, applicationID)
	var status string
	err := row.Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// History returns all events for the application, oldest first.
func (l *Ledger) History(applicationID int64) ([]models.StatusEvent, error) {
	rows, err := l.DB.Query(`
		SELECT id, application_id, status, created_at FROM status_events
		WHERE application_id = ?
		ORDER BY created_at, id
	`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.StatusEvent
	for rows.Next() {
		var e models.StatusEvent
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.Status, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
