package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"caseline/internal/domain"
)

// HashAPIKey returns the hex SHA-256 digest stored in place of raw keys.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// GenerateAPIKey mints a raw key for an actor/role pair and stores its hash.
// The raw key is returned once and never persisted.
func (r Repo) GenerateAPIKey(ctx context.Context, actorID, role, name string) (string, domain.APIKey, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", domain.APIKey{}, err
	}
	key := "clk_" + hex.EncodeToString(raw)
	rec := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Role:      role,
		Name:      name,
		KeyHash:   HashAPIKey(key),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id,actor_id,role,name,key_hash,created_at) VALUES (?,?,?,?,?,?)`,
		rec.ID, rec.ActorID, rec.Role, nullable(rec.Name), rec.KeyHash, rec.CreatedAt)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	return key, rec, nil
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,actor_id,role,COALESCE(name,''),key_hash,created_at FROM api_keys WHERE key_hash=?`, hash)
	var k domain.APIKey
	err := row.Scan(&k.ID, &k.ActorID, &k.Role, &k.Name, &k.KeyHash, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return k, ErrNotFound
	}
	return k, err
}

func (r Repo) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
