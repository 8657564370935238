package token

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/de-tools/market-atlas/pkg/models/store"
	"github.com/de-tools/market-atlas/pkg/store/duckdb"
)

var ErrNotFound = errors.New("token not found")

type Store interface {
	Get(ctx context.Context, subjectID, provider string) (*store.Token, error)
	Save(ctx context.Context, token store.Token) error
}

type tokenStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &tokenStore{db: db}, nil
}

func (s *tokenStore) Get(ctx context.Context, subjectID, provider string) (*store.Token, error) {
	var (
		t       store.Token
		refresh sql.NullString
		expires sql.NullTime
	)
	err := duckdb.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT subject_id, provider, access_token, refresh_token, expires_at, scope, updated_at
		FROM oauth_tokens
		WHERE subject_id = ? AND provider = ?`,
		subjectID, provider,
	).Scan(&t.SubjectID, &t.Provider, &t.AccessToken, &refresh, &expires, &t.Scope, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, subjectID, provider)
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	if refresh.Valid {
		t.RefreshToken = &refresh.String
	}
	if expires.Valid {
		t.ExpiresAt = &expires.Time
	}
	return &t, nil
}

// Save upserts the token for (subject, provider).
func (s *tokenStore) Save(ctx context.Context, t store.Token) error {
	var expires *time.Time
	if t.ExpiresAt != nil {
		e := t.ExpiresAt.UTC()
		expires = &e
	}

	_, err := duckdb.Conn(ctx, s.db).ExecContext(ctx, `
		INSERT INTO oauth_tokens (subject_id, provider, access_token, refresh_token, expires_at, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at`,
		t.SubjectID, t.Provider, t.AccessToken, t.RefreshToken, expires, t.Scope, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
