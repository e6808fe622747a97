package data

import (
	"context"
	"database/sql"
	"time"
)

// VendorAccount holds the stored credentials for one vendor integration.
// PasswordEnc and RefreshTokenEnc are sealed with the credential key and are
// only decrypted inside the vendor session.
type VendorAccount struct {
	ID              int64
	Plugin          string
	Username        string
	PasswordEnc     []byte
	RefreshTokenEnc []byte
	TokenExpires    *time.Time
	UpdatedAt       time.Time
}

type VendorModel struct {
	DB DBTX
}

func (m VendorModel) GetByPlugin(ctx context.Context, plugin string) (*VendorAccount, error) {
	query := `
		SELECT id, plugin, username, password_enc, refresh_token_enc, token_expires, updated_at
		FROM vendor_accounts
		WHERE plugin = $1`

	var v VendorAccount
	var tokenExpires sql.NullTime
	err := m.DB.QueryRowContext(ctx, query, plugin).Scan(
		&v.ID, &v.Plugin, &v.Username, &v.PasswordEnc, &v.RefreshTokenEnc, &tokenExpires, &v.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if tokenExpires.Valid {
		t := tokenExpires.Time.UTC()
		v.TokenExpires = &t
	}
	return &v, nil
}

// UpdateRefreshToken stores a freshly issued refresh token, already sealed.
func (m VendorModel) UpdateRefreshToken(ctx context.Context, id int64, tokenEnc []byte, expires time.Time) error {
	query := `
		UPDATE vendor_accounts
		SET refresh_token_enc = $1, token_expires = $2, updated_at = (NOW() AT TIME ZONE 'UTC')
		WHERE id = $3`
	res, err := m.DB.ExecContext(ctx, query, tokenEnc, expires.UTC(), id)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}
