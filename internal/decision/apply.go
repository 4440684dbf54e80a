package decision

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/citybenefits/casebridge/internal/db"
	"github.com/citybenefits/casebridge/internal/logging"
	"github.com/citybenefits/casebridge/internal/models"
	"go.uber.org/zap"
)

// Applier writes extracted decision details onto the owning batch and,
// when staged payments are enabled, promotes due installments of accepted
// applications.
type Applier struct {
	DB             *sql.DB
	StagedPayments bool
	Logger         *zap.Logger
	Now            func() time.Time
}

// Apply updates the application's batch with the decision fields. For an
// accepted application with staged payments enabled, waiting installments
// due on or before today move to the accepted state.
func (a *Applier) Apply(app *models.Application, d *Details) error {
	if app.BatchID == nil {
		return fmt.Errorf("application %s has no batch", app.UUID)
	}

	err := db.UpdateBatchDecision(a.DB, *app.BatchID,
		d.MakerName, d.MakerTitle, d.SectionOfLaw, d.DecisionDate.Unix())
	if err != nil {
		return fmt.Errorf("update batch decision: %w", err)
	}

	if a.StagedPayments && app.Status == models.AppStatusAccepted {
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}
		endOfToday := endOfDay(now().UTC())
		promoted, err := db.PromoteDueInstallments(a.DB, app.ID, endOfToday.Unix())
		if err != nil {
			return fmt.Errorf("promote installments: %w", err)
		}
		if promoted > 0 {
			a.Logger.Info("installments promoted",
				logging.AppID(app.UUID),
				zap.Int64("count", promoted))
		}
	}

	return nil
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
