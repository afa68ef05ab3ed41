package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type secretRepo struct{}

// NewSecretRepository returns a pgx-backed SecretRepository.
func NewSecretRepository() SecretRepository {
	return &secretRepo{}
}

func (r *secretRepo) Get(ctx context.Context, db DBTX, key string) (string, bool, error) {
	var ciphertext string
	err := db.QueryRow(ctx, `SELECT ciphertext FROM secrets WHERE key = $1`, key).Scan(&ciphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read secret: %w", err)
	}
	return ciphertext, true, nil
}

func (r *secretRepo) Upsert(ctx context.Context, db DBTX, key, ciphertext string) error {
	_, err := db.Exec(ctx, `
		INSERT INTO secrets (key, ciphertext) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET ciphertext = EXCLUDED.ciphertext, updated_at = now()`,
		key, ciphertext)
	if err != nil {
		return fmt.Errorf("upsert secret: %w", err)
	}
	return nil
}

func (r *secretRepo) Delete(ctx context.Context, db DBTX, key string) error {
	if _, err := db.Exec(ctx, `DELETE FROM secrets WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}
