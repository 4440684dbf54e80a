package db

import (
	"database/sql"
	"testing"
	"time"

	"github.com/citybenefits/casebridge/internal/models"
)

func insertApp(t *testing.T, d *sql.DB, uuid, status, handler, caseID string) int64 {
	t.Helper()
	result, err := d.Exec(
		"INSERT INTO applications (uuid, status, handler, case_id) VALUES (?, ?, ?, ?)",
		uuid, status, handler, caseID,
	)
	if err != nil {
		t.Fatalf("insert application: %v", err)
	}
	id, _ := result.LastInsertId()
	return id
}

func appendEvent(t *testing.T, d *sql.DB, appID int64, status string, createdAt int64) {
	t.Helper()
	_, err := d.Exec(
		"INSERT INTO status_events (application_id, status, created_at) VALUES (?, ?, ?)",
		appID, status, createdAt,
	)
	if err != nil {
		t.Fatalf("insert status event: %v", err)
	}
}

func TestCandidatesByState(t *testing.T) {
	d := openTestDB(t)
	now := time.Now().Unix()

	// Matches: HANDLING and currently submitted_but_not_sent.
	a1 := insertApp(t, d, "app-1", models.AppStatusHandling, "handler", "")
	appendEvent(t, d, a1, models.StatusSubmittedNotSent, now)

	// Wrong backend status.
	a2 := insertApp(t, d, "app-2", models.AppStatusCancelled, "handler", "")
	appendEvent(t, d, a2, models.StatusSubmittedNotSent, now)

	// Ledger has moved on; only the latest event counts.
	a3 := insertApp(t, d, "app-3", models.AppStatusHandling, "handler", "")
	appendEvent(t, d, a3, models.StatusSubmittedNotSent, now-10)
	appendEvent(t, d, a3, models.StatusOpenCaseSent, now)

	apps, err := CandidatesByState(d, models.AppStatusHandling, models.StatusSubmittedNotSent, 10)
	if err != nil {
		t.Fatalf("CandidatesByState: %v", err)
	}
	if len(apps) != 1 || apps[0].UUID != "app-1" {
		t.Errorf("expected only app-1, got %+v", apps)
	}
}

func TestCandidatesByStateHonorsLimit(t *testing.T) {
	d := openTestDB(t)
	now := time.Now().Unix()

	for _, uuid := range []string{"app-1", "app-2", "app-3"} {
		id := insertApp(t, d, uuid, models.AppStatusHandling, "handler", "")
		appendEvent(t, d, id, models.StatusSubmittedNotSent, now)
	}

	apps, err := CandidatesByState(d, models.AppStatusHandling, models.StatusSubmittedNotSent, 2)
	if err != nil {
		t.Fatalf("CandidatesByState: %v", err)
	}
	if len(apps) != 2 {
		t.Errorf("expected 2 candidates, got %d", len(apps))
	}
}

func TestDeleteCandidates(t *testing.T) {
	d := openTestDB(t)
	now := time.Now().Unix()

	// Cancelled with an open case: selected.
	a1 := insertApp(t, d, "app-1", models.AppStatusCancelled, "handler", "HEL-1")
	appendEvent(t, d, a1, models.StatusCaseOpened, now)

	// Already in the delete branch: skipped.
	a2 := insertApp(t, d, "app-2", models.AppStatusCancelled, "handler", "HEL-2")
	appendEvent(t, d, a2, models.StatusDeleteRequestSent, now)

	// No case yet: nothing to delete.
	insertApp(t, d, "app-3", models.AppStatusCancelled, "handler", "")

	apps, err := DeleteCandidates(d, 10)
	if err != nil {
		t.Fatalf("DeleteCandidates: %v", err)
	}
	if len(apps) != 1 || apps[0].UUID != "app-1" {
		t.Errorf("expected only app-1, got %+v", apps)
	}
}

func TestSetCaseIdentifiersPartial(t *testing.T) {
	d := openTestDB(t)
	id := insertApp(t, d, "app-1", models.AppStatusHandling, "handler", "HEL-1")

	// Empty values must not clobber existing identifiers.
	if err := SetCaseIdentifiers(d, id, "", "guid-1"); err != nil {
		t.Fatalf("SetCaseIdentifiers: %v", err)
	}

	app, err := GetApplicationByUUID(d, "app-1")
	if err != nil {
		t.Fatalf("GetApplicationByUUID: %v", err)
	}
	if app.CaseID != "HEL-1" {
		t.Errorf("case_id clobbered: %q", app.CaseID)
	}
	if app.CaseGUID != "guid-1" {
		t.Errorf("case_guid not set: %q", app.CaseGUID)
	}
}

func TestPromoteDueInstallments(t *testing.T) {
	d := openTestDB(t)
	id := insertApp(t, d, "app-1", models.AppStatusAccepted, "handler", "HEL-1")

	today := time.Now().Unix()
	tomorrow := today + 86400

	seed := func(ordinal int, due int64, status string) {
		_, err := d.Exec(
			"INSERT INTO installments (application_id, ordinal, due_date, status) VALUES (?, ?, ?, ?)",
			id, ordinal, due, status,
		)
		if err != nil {
			t.Fatalf("insert installment: %v", err)
		}
	}
	seed(1, today-86400, models.InstallmentWaiting)
	seed(2, today, models.InstallmentWaiting)
	seed(3, tomorrow, models.InstallmentWaiting)
	seed(4, today, models.InstallmentAccepted)

	promoted, err := PromoteDueInstallments(d, id, today)
	if err != nil {
		t.Fatalf("PromoteDueInstallments: %v", err)
	}
	if promoted != 2 {
		t.Errorf("expected 2 promoted, got %d", promoted)
	}

	var waiting int
	if err := d.QueryRow(
		"SELECT COUNT(*) FROM installments WHERE application_id = ? AND status = ?",
		id, models.InstallmentWaiting,
	).Scan(&waiting); err != nil {
		t.Fatalf("count waiting: %v", err)
	}
	if waiting != 1 {
		t.Errorf("expected 1 installment still waiting, got %d", waiting)
	}
}
