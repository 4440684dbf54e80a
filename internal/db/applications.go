package db

import (
	"database/sql"

	"github.com/citybenefits/casebridge/internal/models"
)

const applicationColumns = "id, uuid, status, handler, case_id, case_guid, batch_id"

func scanApplication(row interface{ Scan(...any) error }) (*models.Application, error) {
	var a models.Application
	err := row.Scan(&a.ID, &a.UUID, &a.Status, &a.Handler, &a.CaseID, &a.CaseGUID, &a.BatchID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetApplicationByUUID returns the application addressed by a callback URL,
// or nil when unknown.
func GetApplicationByUUID(d *sql.DB, uuid string) (*models.Application, error) {
	row := d.QueryRow(
		"SELECT "+applicationColumns+" FROM applications WHERE uuid = ?", uuid,
	)
	a, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// currentStatusSubquery selects the latest ledger status of an application,
// with the row id breaking same-second ties.
const currentStatusSubquery = `(
	SELECT s.status FROM status_events s
	WHERE s.application_id = a.id
	ORDER BY s.created_at DESC, s.id DESC
	LIMIT 1
)`

// CandidatesByState selects up to limit applications whose backend status
// matches appStatus (any when empty) and whose current ledger state equals
// ledgerStatus, in insertion order.
func CandidatesByState(d *sql.DB, appStatus, ledgerStatus string, limit int) ([]models.Application, error) {
	rows, err := d.Query(`
		SELECT `+applicationColumns+` FROM applications a
		WHERE (? = '' OR a.status = ?)
		AND `+currentStatusSubquery+` = ?
		ORDER BY a.id
		LIMIT ?
	`, appStatus, appStatus, ledgerStatus, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApplications(rows)
}

// CandidatesWithUnsyncedAttachments selects applications with an open case
// and at least one attachment the registry has not yet acknowledged.
func CandidatesWithUnsyncedAttachments(d *sql.DB, limit int) ([]models.Application, error) {
	rows, err := d.Query(`
		SELECT `+applicationColumns+` FROM applications a
		WHERE a.case_id != ''
		AND EXISTS (
			SELECT 1 FROM attachments t
			WHERE t.application_id = a.id AND t.version_series_id IS NULL
		)
		AND `+currentStatusSubquery+` NOT IN (?, ?)
		ORDER BY a.id
		LIMIT ?
	`, models.StatusDeleteRequestSent, models.StatusDeleteRequestReceived, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApplications(rows)
}

// DeleteCandidates selects cancelled applications that still hold an open
// case and have not yet entered the delete branch of the lifecycle.
func DeleteCandidates(d *sql.DB, limit int) ([]models.Application, error) {
	rows, err := d.Query(`
		SELECT `+applicationColumns+` FROM applications a
		WHERE a.status = ? AND a.case_id != ''
		AND `+currentStatusSubquery+` NOT IN (?, ?)
		ORDER BY a.id
		LIMIT ?
	`, models.AppStatusCancelled, models.StatusDeleteRequestSent, models.StatusDeleteRequestReceived, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectApplications(rows)
}

func collectApplications(rows *sql.Rows) ([]models.Application, error) {
	var apps []models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

// SetCaseIdentifiers writes the registry's case identifiers onto an
// application. Writing the same identifier twice is harmless.
func SetCaseIdentifiers(d *sql.DB, applicationID int64, caseID, caseGUID string) error {
	_, err := d.Exec(`
		UPDATE applications
		SET case_id = CASE WHEN ? != '' THEN ? ELSE case_id END,
		    case_guid = CASE WHEN ? != '' THEN ? ELSE case_guid END
		WHERE id = ?
	`, caseID, caseID, caseGUID, caseGUID, applicationID)
	return err
}

// GetBatch returns an application batch by id, or nil when unknown.
func GetBatch(d *sql.DB, batchID int64) (*models.ApplicationBatch, error) {
	row := d.QueryRow(
		"SELECT id, status, decision_maker_name, decision_maker_title, section_of_law, decision_date FROM application_batches WHERE id = ?",
		batchID,
	)
	var b models.ApplicationBatch
	err := row.Scan(&b.ID, &b.Status, &b.DecisionMakerName, &b.DecisionMakerTitle, &b.SectionOfLaw, &b.DecisionDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBatchDecision writes the extracted decision fields onto a batch.
func UpdateBatchDecision(d *sql.DB, batchID int64, makerName, makerTitle, sectionOfLaw string, decisionDate int64) error {
	_, err := d.Exec(`
		UPDATE application_batches
		SET decision_maker_name = ?, decision_maker_title = ?, section_of_law = ?, decision_date = ?
		WHERE id = ?
	`, makerName, makerTitle, sectionOfLaw, decisionDate, batchID)
	return err
}

// PromoteDueInstallments moves an application's waiting installments with a
// due date on or before the given instant into the accepted state, and
// returns how many rows changed.
func PromoteDueInstallments(d *sql.DB, applicationID int64, dueBy int64) (int64, error) {
	result, err := d.Exec(`
		UPDATE installments SET status = ?
		WHERE application_id = ? AND status = ? AND due_date <= ?
	`, models.InstallmentAccepted, applicationID, models.InstallmentWaiting, dueBy)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
