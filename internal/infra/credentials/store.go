package credentials

import (
	"context"
	"errors"
	"strings"

	"vidqueue/internal/infra"
	"vidqueue/internal/sqlinline"
)

const ProviderGemini = "gemini"

// Store persists provider API keys. Keys survive restarts even though jobs
// do not.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// GeminiAPIKey returns the stored Gemini key, or an empty string when none
// has been configured yet.
func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

func (s *Store) SetGeminiAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("gemini api key is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, ProviderGemini, key)
	return err
}
