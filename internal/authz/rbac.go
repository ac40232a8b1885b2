package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcioluisms/hotelly2-sub000/internal/store"
)

// Member is one user's role on a property, for the RBAC listing.
type Member struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// RBAC manages property role assignments.
type RBAC struct {
	pool *pgxpool.Pool
}

func NewRBAC(pool *pgxpool.Pool) *RBAC {
	return &RBAC{pool: pool}
}

// ListMembers returns all role holders on a property.
func (r *RBAC) ListMembers(ctx context.Context, propertyID string) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, COALESCE(u.email, ''), COALESCE(u.name, ''), upr.role, upr.created_at
		FROM user_property_roles upr
		JOIN users u ON u.id = upr.user_id
		WHERE upr.property_id = $1
		ORDER BY upr.created_at ASC`,
		propertyID)
	if err != nil {
		return nil, fmt.Errorf("authz: list members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.Name, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("authz: scan member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetRole grants or changes a user's role on a property. Demoting the last
// owner is refused: every property must keep at least one owner.
func (r *RBAC) SetRole(ctx context.Context, propertyID, userID, role string) error {
	if !ValidRole(role) {
		return fmt.Errorf("authz: unknown role %q", role)
	}
	return store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if role != RoleOwner {
			if err := assertNotLastOwner(ctx, tx, propertyID, userID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO user_property_roles (user_id, property_id, role)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, property_id) DO UPDATE SET role = EXCLUDED.role`,
			userID, propertyID, role)
		if err != nil {
			return fmt.Errorf("authz: set role: %w", err)
		}
		return nil
	})
}

// RemoveRole revokes a user's access to a property, refusing to remove the
// last owner.
func (r *RBAC) RemoveRole(ctx context.Context, propertyID, userID string) error {
	return store.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := assertNotLastOwner(ctx, tx, propertyID, userID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `
			DELETE FROM user_property_roles WHERE user_id = $1 AND property_id = $2`,
			userID, propertyID)
		if err != nil {
			return fmt.Errorf("authz: remove role: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNoRole
		}
		return nil
	})
}

// assertNotLastOwner locks the property's owner rows and fails when
// removing or demoting userID would leave zero owners.
func assertNotLastOwner(ctx context.Context, tx pgx.Tx, propertyID, userID string) error {
	rows, err := tx.Query(ctx, `
		SELECT user_id FROM user_property_roles
		WHERE property_id = $1 AND role = $2
		FOR UPDATE`,
		propertyID, RoleOwner)
	if err != nil {
		return fmt.Errorf("authz: lock owners: %w", err)
	}
	defer rows.Close()

	owners := 0
	targetIsOwner := false
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("authz: scan owner: %w", err)
		}
		owners++
		if id == userID {
			targetIsOwner = true
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if targetIsOwner && owners <= 1 {
		return ErrLastOwner
	}
	return nil
}
