package decision

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/citybenefits/casebridge/internal/db"
	"github.com/citybenefits/casebridge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupApply(t *testing.T, appStatus string) (*sql.DB, *models.Application) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	result, err := d.Exec("INSERT INTO application_batches (status) VALUES ('')")
	require.NoError(t, err)
	batchID, _ := result.LastInsertId()

	result, err = d.Exec(
		"INSERT INTO applications (uuid, status, handler, case_id, batch_id) VALUES ('app-1', ?, 'handler', 'HEL-1', ?)",
		appStatus, batchID,
	)
	require.NoError(t, err)
	appID, _ := result.LastInsertId()

	return d, &models.Application{
		ID:      appID,
		UUID:    "app-1",
		Status:  appStatus,
		CaseID:  "HEL-1",
		BatchID: &batchID,
	}
}

func seedInstallment(t *testing.T, d *sql.DB, appID int64, ordinal int, due int64) {
	t.Helper()
	_, err := d.Exec(
		"INSERT INTO installments (application_id, ordinal, due_date, status) VALUES (?, ?, ?, ?)",
		appID, ordinal, due, models.InstallmentWaiting,
	)
	require.NoError(t, err)
}

func details() *Details {
	return &Details{
		MakerName:    "Maija Meikäläinen",
		MakerTitle:   "Service Director",
		SectionOfLaw: "12 §",
		DecisionDate: time.Date(2026, 2, 3, 10, 15, 30, 0, time.UTC),
	}
}

func TestApplyUpdatesBatch(t *testing.T) {
	d, app := setupApply(t, models.AppStatusAccepted)

	a := &Applier{DB: d, Logger: zap.NewNop()}
	require.NoError(t, a.Apply(app, details()))

	batch, err := db.GetBatch(d, *app.BatchID)
	require.NoError(t, err)
	require.NotNil(t, batch.DecisionMakerName)
	assert.Equal(t, "Maija Meikäläinen", *batch.DecisionMakerName)
	assert.Equal(t, "Service Director", *batch.DecisionMakerTitle)
	assert.Equal(t, "12 §", *batch.SectionOfLaw)
	assert.Equal(t, details().DecisionDate.Unix(), *batch.DecisionDate)
}

func TestApplyPromotesDueInstallments(t *testing.T) {
	d, app := setupApply(t, models.AppStatusAccepted)

	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	seedInstallment(t, d, app.ID, 1, now.AddDate(0, 0, -3).Unix())
	seedInstallment(t, d, app.ID, 2, now.AddDate(0, 0, 14).Unix())

	a := &Applier{DB: d, StagedPayments: true, Logger: zap.NewNop(), Now: func() time.Time { return now }}
	require.NoError(t, a.Apply(app, details()))

	var accepted, waiting int
	require.NoError(t, d.QueryRow(
		"SELECT COUNT(*) FROM installments WHERE status = ?", models.InstallmentAccepted,
	).Scan(&accepted))
	require.NoError(t, d.QueryRow(
		"SELECT COUNT(*) FROM installments WHERE status = ?", models.InstallmentWaiting,
	).Scan(&waiting))

	assert.Equal(t, 1, accepted, "only the due installment is promoted")
	assert.Equal(t, 1, waiting)
}

func TestApplySkipsInstallmentsWhenNotAccepted(t *testing.T) {
	d, app := setupApply(t, models.AppStatusRejected)

	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	seedInstallment(t, d, app.ID, 1, now.AddDate(0, 0, -3).Unix())

	a := &Applier{DB: d, StagedPayments: true, Logger: zap.NewNop(), Now: func() time.Time { return now }}
	require.NoError(t, a.Apply(app, details()))

	var waiting int
	require.NoError(t, d.QueryRow(
		"SELECT COUNT(*) FROM installments WHERE status = ?", models.InstallmentWaiting,
	).Scan(&waiting))
	assert.Equal(t, 1, waiting)
}

func TestApplyWithoutBatch(t *testing.T) {
	d, app := setupApply(t, models.AppStatusAccepted)
	app.BatchID = nil

	a := &Applier{DB: d, Logger: zap.NewNop()}
	assert.Error(t, a.Apply(app, details()))
}
