// Package models defines the database entity types.
package models

import "time"

// Application statuses as reported by the benefit backend.
const (
	AppStatusHandling  = "HANDLING"
	AppStatusAccepted  = "ACCEPTED"
	AppStatusRejected  = "REJECTED"
	AppStatusCancelled = "CANCELLED"
)

// Integration ledger statuses. The normal lifecycle runs top to bottom;
// the delete statuses form a parallel cancellation branch off case_opened.
const (
	StatusSubmittedNotSent         = "submitted_but_not_sent"
	StatusOpenCaseSent             = "request_to_open_case_sent"
	StatusCaseOpened               = "case_opened"
	StatusDecisionProposalSent     = "decision_proposal_sent"
	StatusDecisionProposalAccepted = "decision_proposal_accepted"
	StatusUpdateRequestSent        = "update_request_sent"
	StatusSignedInAhjo             = "signed_in_ahjo"
	StatusDetailsReceived          = "details_received_from_ahjo"
	StatusDeleteRequestSent        = "delete_request_sent"
	StatusDeleteRequestReceived    = "delete_request_received"
)

// Request type names, used in the CLI, in callback URLs, and in audit rows.
const (
	RequestOpenCase          = "open_case"
	RequestDecisionProposal  = "send_decision_proposal"
	RequestUpdateApplication = "update_application"
	RequestAddRecords        = "add_records"
	RequestDeleteApplication = "delete_application"
	RequestDecisionDetails   = "get_decision_details"
)

// Installment statuses for staged payments.
const (
	InstallmentWaiting  = "waiting"
	InstallmentAccepted = "accepted"
)

// Token is the single stored OAuth2 token. At most one row exists at any
// time; replacement is atomic. CreatedAt is stamped at local persistence
// time because the token endpoint carries no issuance claim.
type Token struct {
	ID           int64
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	CreatedAt    int64
}

// ExpiresAt returns the instant the token stops being usable.
func (t *Token) ExpiresAt() time.Time {
	return time.Unix(t.CreatedAt+t.ExpiresIn, 0).UTC()
}

// Expired reports whether the token has expired at the given instant.
// The boundary itself counts as expired.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt())
}

// Application is a benefit application mirrored into the registry.
type Application struct {
	ID       int64
	UUID     string
	Status   string
	Handler  string
	CaseID   string
	CaseGUID string
	BatchID  *int64
}

// ApplicationBatch groups decided applications and carries the decision
// fields extracted from the registry's decision document.
type ApplicationBatch struct {
	ID                 int64
	Status             string
	DecisionMakerName  *string
	DecisionMakerTitle *string
	SectionOfLaw       *string
	DecisionDate       *int64
}

// Attachment is a document referenced by URL in outbound payloads so the
// registry can fetch it. VersionSeriesID is set once the registry reports
// a stored record whose content hash matches ours.
type Attachment struct {
	ID              int64
	ApplicationID   int64
	UUID            string
	Filename        string
	ContentType     string
	SHA256          string
	Content         []byte
	VersionSeriesID *string
}

// StatusEvent is one append-only ledger row. Never mutated or deleted.
type StatusEvent struct {
	ID            int64
	ApplicationID int64
	Status        string
	CreatedAt     int64
}

// Installment is one staged payment tranche of an accepted application.
type Installment struct {
	ID            int64
	ApplicationID int64
	Ordinal       int
	DueDate       int64
	Status        string
}

// AuditEntry records an integration-relevant occurrence for operators.
type AuditEntry struct {
	ID            int64
	ApplicationID int64
	Operation     string
	Message       string
	CreatedAt     int64
}

// APIKey authenticates the registry's attachment downloads.
type APIKey struct {
	ID        int64
	KeyPrefix string
	KeyHash   []byte
	CreatedAt int64
	RevokedAt *int64
}

// RequestTypes lists every request type addressable in a callback URL.
var RequestTypes = []string{
	RequestOpenCase,
	RequestDecisionProposal,
	RequestUpdateApplication,
	RequestAddRecords,
	RequestDeleteApplication,
	RequestDecisionDetails,
}

// ValidRequestType reports whether typ names a known request type.
func ValidRequestType(typ string) bool {
	for _, t := range RequestTypes {
		if t == typ {
			return true
		}
	}
	return false
}
