// Package server implements the inbound HTTP surface: the callback
// endpoint the registry posts asynchronous results to, and the
// access-controlled attachment downloads.
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/citybenefits/casebridge/internal/db"
	"github.com/citybenefits/casebridge/internal/ledger"
	"github.com/citybenefits/casebridge/internal/logging"
	"github.com/citybenefits/casebridge/internal/models"
	"go.uber.org/zap"
)

// CallbackPayload is the body the registry posts back after processing a
// previously dispatched request.
type CallbackPayload struct {
	Message   string           `json:"message"`
	RequestID string           `json:"requestId"`
	CaseGUID  string           `json:"caseGuid,omitempty"`
	CaseID    string           `json:"caseId,omitempty"`
	Records   []CallbackRecord `json:"records,omitempty"`
}

// CallbackRecord reports one stored record with the content hash the
// registry computed and its assigned version-series identifier.
type CallbackRecord struct {
	HashValue       string `json:"hashValue"`
	VersionSeriesID string `json:"versionSeriesId"`
}

const (
	messageSuccess = "SUCCESS"
	messageFailure = "FAILURE"
)

// Server handles the registry-facing inbound endpoints.
type Server struct {
	DB     *sql.DB
	Ledger *ledger.Ledger
	Logger *zap.Logger
}

// Handler returns the HTTP handler with all inbound routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /cases/{uuid}/callback/{request_type}", s.handleCallback)
	mux.Handle("GET /attachments/{uuid}", s.AuthMiddleware(http.HandlerFunc(s.handleAttachment)))
	return mux
}

// handleCallback validates the payload shape and applies the reported
// outcome. The registry always receives an immediate 2xx for any
// well-formed callback, success or failure, to avoid retry storms.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	appUUID := r.PathValue("uuid")
	requestType := r.PathValue("request_type")

	fieldErrors := map[string]string{}
	if !models.ValidRequestType(requestType) {
		fieldErrors["request_type"] = "unknown request type"
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var payload CallbackPayload
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&payload); err != nil && err != io.EOF {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	message := strings.ToUpper(payload.Message)
	if message != messageSuccess && message != messageFailure {
		fieldErrors["message"] = "must be Success or Failure"
	}
	if payload.RequestID == "" {
		fieldErrors["requestId"] = "required"
	}
	if len(fieldErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": fieldErrors})
		return
	}

	app, err := db.GetApplicationByUUID(s.DB, appUUID)
	if err != nil {
		s.Logger.Error("application lookup failed", logging.AppID(appUUID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	if app == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "application not found"})
		return
	}

	if message == messageFailure {
		// The registry could not process the request. Acknowledge anyway;
		// the inbound protocol requires it regardless of business outcome.
		s.Logger.Warn("registry reported failure",
			logging.AppID(app.UUID),
			logging.RequestType(requestType),
			logging.RequestID(payload.RequestID))
		s.ack(w)
		return
	}

	switch requestType {
	case models.RequestOpenCase:
		if err := s.applyOpenCaseSuccess(app, &payload); err != nil {
			s.Logger.Error("apply open case callback failed",
				logging.AppID(app.UUID),
				logging.RequestID(payload.RequestID),
				zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
			return
		}
	case models.RequestDeleteApplication:
		// No domain mutation beyond the ledger; archival of the deleted
		// case is a deliberate extension point.
		if err := s.Ledger.Append(app.ID, models.StatusDeleteRequestReceived); err != nil {
			s.Logger.Error("append delete status failed", logging.AppID(app.UUID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
			return
		}
	default:
		if err := db.InsertAuditEntry(s.DB, app.ID, requestType,
			fmt.Sprintf("callback acknowledged, requestId %s", payload.RequestID)); err != nil {
			s.Logger.Error("audit entry failed", logging.AppID(app.UUID), zap.Error(err))
		}
	}

	s.Logger.Info("callback processed",
		logging.AppID(app.UUID),
		logging.RequestType(requestType),
		logging.RequestID(payload.RequestID))
	s.ack(w)
}

// applyOpenCaseSuccess writes the registry's case identifiers, matches
// callback records to attachments by content hash, and moves the ledger to
// case_opened.
func (s *Server) applyOpenCaseSuccess(app *models.Application, payload *CallbackPayload) error {
	if err := db.SetCaseIdentifiers(s.DB, app.ID, payload.CaseID, payload.CaseGUID); err != nil {
		return fmt.Errorf("set case identifiers: %w", err)
	}

	atts, err := db.ListAttachments(s.DB, app.ID)
	if err != nil {
		return fmt.Errorf("list attachments: %w", err)
	}
	for _, rec := range payload.Records {
		if rec.HashValue == "" || rec.VersionSeriesID == "" {
			continue
		}
		for _, att := range atts {
			if att.SHA256 == rec.HashValue {
				if err := db.SetAttachmentVersion(s.DB, att.ID, rec.VersionSeriesID); err != nil {
					return fmt.Errorf("set attachment version: %w", err)
				}
			}
		}
	}

	if err := s.Ledger.Append(app.ID, models.StatusCaseOpened); err != nil {
		return fmt.Errorf("append status: %w", err)
	}

	return db.InsertAuditEntry(s.DB, app.ID, models.RequestOpenCase,
		fmt.Sprintf("case opened, requestId %s, caseId %s", payload.RequestID, payload.CaseID))
}

func (s *Server) ack(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Callback received"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
