package db

import (
	"database/sql"

	"github.com/citybenefits/casebridge/internal/models"
)

const attachmentColumns = "id, application_id, uuid, filename, content_type, sha256, content, version_series_id"

// ListAttachments returns all attachments of an application.
func ListAttachments(d *sql.DB, applicationID int64) ([]models.Attachment, error) {
	rows, err := d.Query(
		"SELECT "+attachmentColumns+" FROM attachments WHERE application_id = ? ORDER BY id",
		applicationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var atts []models.Attachment
	for rows.Next() {
		var a models.Attachment
		err := rows.Scan(&a.ID, &a.ApplicationID, &a.UUID, &a.Filename, &a.ContentType, &a.SHA256, &a.Content, &a.VersionSeriesID)
		if err != nil {
			return nil, err
		}
		atts = append(atts, a)
	}
	return atts, rows.Err()
}

// GetAttachmentByUUID returns the attachment the registry is fetching,
// or nil when unknown.
func GetAttachmentByUUID(d *sql.DB, uuid string) (*models.Attachment, error) {
	row := d.QueryRow(
		"SELECT "+attachmentColumns+" FROM attachments WHERE uuid = ?", uuid,
	)
	var a models.Attachment
	err := row.Scan(&a.ID, &a.ApplicationID, &a.UUID, &a.Filename, &a.ContentType, &a.SHA256, &a.Content, &a.VersionSeriesID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAttachmentVersion stores the registry's version-series identifier on
// an attachment whose content hash matched a callback record.
func SetAttachmentVersion(d *sql.DB, attachmentID int64, versionSeriesID string) error {
	_, err := d.Exec(
		"UPDATE attachments SET version_series_id = ? WHERE id = ?",
		versionSeriesID, attachmentID,
	)
	return err
}
