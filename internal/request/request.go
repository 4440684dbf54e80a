// Package request defines the typed outbound registry operations. Each
// variant fixes its HTTP method, its success ledger status, and the
// preconditions that must hold before a URL can be built. Requests are
// transient and constructed fresh per dispatch.
package request

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/citybenefits/casebridge/internal/models"
)

var (
	// ErrMissingHandler means the case handler identity is not set on the
	// application. The item is skipped and retried once satisfied.
	ErrMissingHandler = errors.New("case handler identity not set")
	// ErrMissingCaseID means the registry case id is not yet known.
	ErrMissingCaseID = errors.New("registry case id not set")
	// ErrUnknownType means the request type name is not recognised.
	ErrUnknownType = errors.New("unknown request type")
)

// Request is one typed outbound operation against the registry.
type Request interface {
	// Type is the request type name used in callback URLs and the CLI.
	Type() string
	// Method is the fixed HTTP method of this variant.
	Method() string
	// SuccessStatus is the ledger status appended after a successful
	// dispatch, or empty for acknowledge-only variants.
	SuccessStatus() string
	// Application is the application this request mirrors.
	Application() *models.Application
	// Validate checks the variant's preconditions. A validation failure
	// must issue no HTTP call.
	Validate() error
	// URL builds the target URL under the registry base. It fails with
	// the same precondition errors as Validate.
	URL(base string) (string, error)
	// NeedsCallback reports whether the dispatch registers a callback URL
	// with the registry.
	NeedsCallback() bool
	// Payload is the JSON body, or nil for body-less variants.
	Payload() any
}

// Options carries the cross-variant construction inputs.
type Options struct {
	// Attachments referenced by URL so the registry can fetch them.
	Attachments []models.Attachment
	// AttachmentBase is the public base URL serving attachment content.
	AttachmentBase string
	// DeleteReason is sent as the reason query parameter on deletes.
	DeleteReason string
}

// New constructs the request variant named by typ for the application.
func New(typ string, app *models.Application, opts Options) (Request, error) {
	b := base{app: app, opts: opts}
	switch typ {
	case models.RequestOpenCase:
		return &OpenCase{b}, nil
	case models.RequestDecisionProposal:
		return &DecisionProposal{b}, nil
	case models.RequestUpdateApplication:
		return &UpdateRecords{b}, nil
	case models.RequestAddRecords:
		return &AddRecords{b}, nil
	case models.RequestDeleteApplication:
		return &DeleteCase{b}, nil
	case models.RequestDecisionDetails:
		return &DecisionDetails{b}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
}

type base struct {
	app  *models.Application
	opts Options
}

func (b *base) Application() *models.Application { return b.app }
func (b *base) NeedsCallback() bool              { return true }

func (b *base) requireHandler() error {
	if b.app.Handler == "" {
		return ErrMissingHandler
	}
	return nil
}

func (b *base) requireCase() error {
	if err := b.requireHandler(); err != nil {
		return err
	}
	if b.app.CaseID == "" {
		return ErrMissingCaseID
	}
	return nil
}

// recordsURL is the target of every variant except OpenCase:
// {base}/cases/{case_id}/records.
func (b *base) recordsURL(baseURL string) (string, error) {
	if b.app.CaseID == "" {
		return "", ErrMissingCaseID
	}
	return fmt.Sprintf("%s/cases/%s/records", baseURL, b.app.CaseID), nil
}

type recordRef struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
	FileURI  string `json:"fileURI"`
	Hash     string `json:"hashValue"`
}

type envelope struct {
	ApplicationID string      `json:"applicationId"`
	Handler       string      `json:"handler,omitempty"`
	Records       []recordRef `json:"records,omitempty"`
}

func (b *base) envelope() any {
	env := envelope{
		ApplicationID: b.app.UUID,
		Handler:       b.app.Handler,
	}
	for _, a := range b.opts.Attachments {
		env.Records = append(env.Records, recordRef{
			ID:       a.UUID,
			FileName: a.Filename,
			FileURI:  fmt.Sprintf("%s/attachments/%s", b.opts.AttachmentBase, a.UUID),
			Hash:     a.SHA256,
		})
	}
	return env
}

// OpenCase opens a new registry case for the application.
type OpenCase struct{ base }

func (r *OpenCase) Type() string          { return models.RequestOpenCase }
func (r *OpenCase) Method() string        { return http.MethodPost }
func (r *OpenCase) SuccessStatus() string { return models.StatusOpenCaseSent }
func (r *OpenCase) Validate() error       { return r.requireHandler() }
func (r *OpenCase) Payload() any          { return r.envelope() }

func (r *OpenCase) URL(baseURL string) (string, error) {
	return baseURL + "/cases", nil
}

// DecisionProposal submits the decision proposal onto an open case.
type DecisionProposal struct{ base }

func (r *DecisionProposal) Type() string          { return models.RequestDecisionProposal }
func (r *DecisionProposal) Method() string        { return http.MethodPost }
func (r *DecisionProposal) SuccessStatus() string { return models.StatusDecisionProposalSent }
func (r *DecisionProposal) Validate() error       { return r.requireCase() }
func (r *DecisionProposal) Payload() any          { return r.envelope() }

func (r *DecisionProposal) URL(baseURL string) (string, error) {
	return r.recordsURL(baseURL)
}

// UpdateRecords replaces previously sent records on an open case.
type UpdateRecords struct{ base }

func (r *UpdateRecords) Type() string          { return models.RequestUpdateApplication }
func (r *UpdateRecords) Method() string        { return http.MethodPut }
func (r *UpdateRecords) SuccessStatus() string { return models.StatusUpdateRequestSent }
func (r *UpdateRecords) Validate() error       { return r.requireCase() }
func (r *UpdateRecords) Payload() any          { return r.envelope() }

func (r *UpdateRecords) URL(baseURL string) (string, error) {
	return r.recordsURL(baseURL)
}

// AddRecords appends new records to an open case. Acknowledge only: no
// ledger status is appended on success.
type AddRecords struct{ base }

func (r *AddRecords) Type() string          { return models.RequestAddRecords }
func (r *AddRecords) Method() string        { return http.MethodPost }
func (r *AddRecords) SuccessStatus() string { return "" }
func (r *AddRecords) Validate() error       { return r.requireCase() }
func (r *AddRecords) Payload() any          { return r.envelope() }

func (r *AddRecords) URL(baseURL string) (string, error) {
	return r.recordsURL(baseURL)
}

// DeleteCase asks the registry to close and remove the case. The target is
// the case itself rather than its records, carrying the acting handler and
// the reason as query parameters.
type DeleteCase struct{ base }

func (r *DeleteCase) Type() string          { return models.RequestDeleteApplication }
func (r *DeleteCase) Method() string        { return http.MethodDelete }
func (r *DeleteCase) SuccessStatus() string { return models.StatusDeleteRequestSent }
func (r *DeleteCase) Validate() error       { return r.requireCase() }
func (r *DeleteCase) Payload() any          { return nil }

func (r *DeleteCase) URL(baseURL string) (string, error) {
	recordsURL, err := r.recordsURL(baseURL)
	if err != nil {
		return "", err
	}
	q := url.Values{
		"actor":  {r.app.Handler},
		"reason": {r.opts.DeleteReason},
	}
	return strings.TrimSuffix(recordsURL, "/records") + "?" + q.Encode(), nil
}

// DecisionDetails pulls the signed decision document. Read only: the
// response is handled synchronously, so no callback URL is registered.
type DecisionDetails struct{ base }

func (r *DecisionDetails) Type() string          { return models.RequestDecisionDetails }
func (r *DecisionDetails) Method() string        { return http.MethodGet }
func (r *DecisionDetails) SuccessStatus() string { return models.StatusDetailsReceived }
func (r *DecisionDetails) Validate() error       { return r.requireCase() }
func (r *DecisionDetails) Payload() any          { return nil }
func (r *DecisionDetails) NeedsCallback() bool   { return false }

func (r *DecisionDetails) URL(baseURL string) (string, error) {
	if r.app.CaseID == "" {
		return "", ErrMissingCaseID
	}
	return fmt.Sprintf("%s/cases/%s", baseURL, r.app.CaseID), nil
}
