package postgres

import (
	"context"
	"strings"

	"github.com/learnpath/academy-hub/internal/domain/admin"
	"github.com/learnpath/academy-hub/internal/domain/shared"
)

// AdminUserRepository reads and writes the admin_users table.
type AdminUserRepository struct {
	db Querier
}

// NewAdminUserRepository creates a new AdminUserRepository.
func NewAdminUserRepository(db Querier) *AdminUserRepository {
	return &AdminUserRepository{db: db}
}

// FindByUsername returns the credential for username (case-insensitive).
func (r *AdminUserRepository) FindByUsername(ctx context.Context, username string) (admin.Credential, error) {
	var (
		c    admin.Credential
		role string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, username, display_name, role, password_hash
		FROM admin_users WHERE lower(username) = $1
	`, strings.ToLower(strings.TrimSpace(username))).Scan(&c.UserID, &c.Username, &c.DisplayName, &role, &c.PasswordHash)
	if err != nil {
		if IsNoRows(err) {
			return admin.Credential{}, shared.WrapError("admin", "FindByUsername", shared.ErrNotFound, "admin user not found", err)
		}
		return admin.Credential{}, err
	}
	c.Role = admin.Role(role)
	return c, nil
}

// Upsert creates or replaces a credential.
func (r *AdminUserRepository) Upsert(ctx context.Context, c admin.Credential) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO admin_users (id, username, display_name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET username = EXCLUDED.username, display_name = EXCLUDED.display_name,
		    role = EXCLUDED.role, password_hash = EXCLUDED.password_hash
	`, c.UserID, c.Username, c.DisplayName, string(c.Role), c.PasswordHash)
	return err
}
