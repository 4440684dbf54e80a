package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/citybenefits/casebridge/internal/models"
)

// GetToken returns the stored token, or nil when none is configured.
// At most one row ever exists; ReplaceToken maintains that invariant.
func GetToken(d *sql.DB) (*models.Token, error) {
	row := d.QueryRow(
		"SELECT id, access_token, refresh_token, expires_in, created_at FROM oauth_tokens",
	)
	var t models.Token
	err := row.Scan(&t.ID, &t.AccessToken, &t.RefreshToken, &t.ExpiresIn, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ReplaceToken atomically swaps the stored token: the old row is removed
// and the new one inserted in a single transaction, so expiry is never
// computed against a stale predecessor. created_at is stamped here, at
// persistence time, since the token response carries no issuance claim.
func ReplaceToken(d *sql.DB, accessToken, refreshToken string, expiresIn int64) (*models.Token, error) {
	tx, err := d.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM oauth_tokens"); err != nil {
		return nil, fmt.Errorf("remove previous token: %w", err)
	}

	createdAt := time.Now().UTC().Unix()
	result, err := tx.Exec(
		"INSERT INTO oauth_tokens (access_token, refresh_token, expires_in, created_at) VALUES (?, ?, ?, ?)",
		accessToken, refreshToken, expiresIn, createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert token: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &models.Token{
		ID:           id,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
		CreatedAt:    createdAt,
	}, nil
}
