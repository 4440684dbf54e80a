// Package batch implements the scheduled reconciliation runs that push
// application state into the registry. A run is a single invocation
// processing its candidate list strictly sequentially, one blocking call
// at a time; registry writes on one case must stay ordered and the
// registry offers no compare-and-swap.
package batch

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/citybenefits/casebridge/internal/config"
	"github.com/citybenefits/casebridge/internal/db"
	"github.com/citybenefits/casebridge/internal/decision"
	"github.com/citybenefits/casebridge/internal/ledger"
	"github.com/citybenefits/casebridge/internal/logging"
	"github.com/citybenefits/casebridge/internal/models"
	"github.com/citybenefits/casebridge/internal/registry"
	"github.com/citybenefits/casebridge/internal/request"
	"github.com/citybenefits/casebridge/internal/tokens"
	"go.uber.org/zap"
)

// RunSpec selects what a run processes.
type RunSpec struct {
	Type   string
	Limit  int
	DryRun bool
}

// Report carries a run's aggregate outcome.
type Report struct {
	Type      string
	Selected  int
	Succeeded int
	Failed    int
	DryRun    bool
}

// Driver executes batch runs. Failures at the token-acquisition step abort
// the whole run; per-item failures are logged and the item is left in its
// prior state for re-selection on the next scheduled run.
type Driver struct {
	DB       *sql.DB
	Tokens   *tokens.Manager
	Client   *registry.Client
	Ledger   *ledger.Ledger
	Applier  *decision.Applier
	Cfg      *config.Config
	Logger   *zap.Logger
	Progress io.Writer
}

// Run processes up to spec.Limit candidates of the given request type.
func (d *Driver) Run(ctx context.Context, spec RunSpec) (*Report, error) {
	if !models.ValidRequestType(spec.Type) {
		return nil, fmt.Errorf("%w: %q", request.ErrUnknownType, spec.Type)
	}
	if spec.Limit <= 0 {
		spec.Limit = 50
	}

	candidates, err := d.candidates(spec.Type, spec.Limit)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	report := &Report{Type: spec.Type, Selected: len(candidates), DryRun: spec.DryRun}

	if spec.DryRun {
		for _, app := range candidates {
			d.printf("would send %s for application %s\n", spec.Type, app.UUID)
		}
		d.printf("%s: %d candidate(s), dry run\n", spec.Type, len(candidates))
		return report, nil
	}

	if len(candidates) == 0 {
		d.printf("%s: no candidates\n", spec.Type)
		return report, nil
	}

	// One token for the whole run. Failure here aborts with no partial
	// processing.
	tok, err := d.Tokens.Current()
	if err != nil {
		return nil, fmt.Errorf("acquire token: %w", err)
	}

	for i := range candidates {
		app := &candidates[i]
		if err := d.processOne(ctx, spec.Type, app, tok); err != nil {
			report.Failed++
			d.printf("failed  %s for application %s: %v\n", spec.Type, app.UUID, err)
			continue
		}
		report.Succeeded++
	}

	d.Logger.Info("batch run finished",
		logging.RequestType(spec.Type),
		logging.Count("selected", report.Selected),
		logging.Count("succeeded", report.Succeeded),
		logging.Count("failed", report.Failed))
	d.printf("%s: %d succeeded, %d failed of %d\n",
		spec.Type, report.Succeeded, report.Failed, report.Selected)

	return report, nil
}

func (d *Driver) processOne(ctx context.Context, typ string, app *models.Application, tok *models.Token) error {
	req, err := d.buildRequest(typ, app)
	if err != nil {
		return err
	}

	if typ == models.RequestDecisionDetails {
		return d.pullDecision(ctx, req, app, tok)
	}

	res, err := d.Client.Send(ctx, req, tok)
	if err != nil {
		return err
	}

	if typ == models.RequestOpenCase {
		caseGUID := stripDelimiters(res.CorrelationID)
		if err := db.SetCaseIdentifiers(d.DB, app.ID, "", caseGUID); err != nil {
			return fmt.Errorf("store case guid: %w", err)
		}
		app.CaseGUID = caseGUID
	}

	if status := req.SuccessStatus(); status != "" {
		if err := d.Ledger.Append(app.ID, status); err != nil {
			return fmt.Errorf("append status: %w", err)
		}
	}

	d.Logger.Info("request dispatched",
		logging.AppID(app.UUID),
		logging.RequestType(typ),
		logging.CorrelationID(res.CorrelationID))
	d.printf("sent    %s for application %s (correlation %s)\n", typ, app.UUID, res.CorrelationID)

	return nil
}

// pullDecision is the synchronous path: the registry answers directly and
// the response goes through the extractor instead of a callback.
func (d *Driver) pullDecision(ctx context.Context, req request.Request, app *models.Application, tok *models.Token) error {
	if err := req.Validate(); err != nil {
		return err
	}

	raw, err := d.Client.GetDecision(ctx, tok, app.CaseID)
	if err != nil {
		return err
	}

	details, err := decision.Parse(raw)
	if err != nil {
		d.Logger.Warn("decision extraction failed",
			logging.AppID(app.UUID),
			logging.CaseID(app.CaseID),
			zap.Error(err))
		return err
	}

	if err := d.Applier.Apply(app, details); err != nil {
		return err
	}

	if err := d.Ledger.Append(app.ID, models.StatusDetailsReceived); err != nil {
		return fmt.Errorf("append status: %w", err)
	}

	d.Logger.Info("decision details applied",
		logging.AppID(app.UUID),
		logging.CaseID(app.CaseID),
		zap.String("decision_maker", details.MakerName))
	d.printf("pulled  decision details for application %s\n", app.UUID)

	return nil
}

func (d *Driver) buildRequest(typ string, app *models.Application) (request.Request, error) {
	opts := request.Options{
		AttachmentBase: strings.TrimSuffix(d.Cfg.PublicBaseURL, "/"),
		DeleteReason:   d.Cfg.DeleteReason,
	}

	switch typ {
	case models.RequestOpenCase, models.RequestDecisionProposal, models.RequestUpdateApplication:
		atts, err := db.ListAttachments(d.DB, app.ID)
		if err != nil {
			return nil, fmt.Errorf("list attachments: %w", err)
		}
		opts.Attachments = atts
	case models.RequestAddRecords:
		atts, err := db.ListAttachments(d.DB, app.ID)
		if err != nil {
			return nil, fmt.Errorf("list attachments: %w", err)
		}
		// Only records the registry has not acknowledged yet.
		for _, a := range atts {
			if a.VersionSeriesID == nil {
				opts.Attachments = append(opts.Attachments, a)
			}
		}
	}

	return request.New(typ, app, opts)
}

// candidates applies the status predicate specific to each request type.
func (d *Driver) candidates(typ string, limit int) ([]models.Application, error) {
	switch typ {
	case models.RequestOpenCase:
		return db.CandidatesByState(d.DB, models.AppStatusHandling, models.StatusSubmittedNotSent, limit)
	case models.RequestDecisionProposal:
		return db.CandidatesByState(d.DB, models.AppStatusHandling, models.StatusCaseOpened, limit)
	case models.RequestUpdateApplication:
		return db.CandidatesByState(d.DB, "", models.StatusDecisionProposalAccepted, limit)
	case models.RequestAddRecords:
		return db.CandidatesWithUnsyncedAttachments(d.DB, limit)
	case models.RequestDeleteApplication:
		return db.DeleteCandidates(d.DB, limit)
	case models.RequestDecisionDetails:
		return db.CandidatesByState(d.DB, "", models.StatusSignedInAhjo, limit)
	default:
		return nil, fmt.Errorf("%w: %q", request.ErrUnknownType, typ)
	}
}

func (d *Driver) printf(format string, args ...any) {
	if d.Progress != nil {
		fmt.Fprintf(d.Progress, format, args...)
	}
}

var delimiterReplacer = strings.NewReplacer("{", "", "}", "", `"`, "")

// stripDelimiters reduces the registry's raw correlation text to the bare
// case identifier. The registry wraps it in braces and sometimes quotes.
func stripDelimiters(s string) string {
	return strings.TrimSpace(delimiterReplacer.Replace(s))
}
