package family

import (
	"context"
	"fmt"
)

// RoleEnsurer is the part of Repository SeedRoles needs.
type RoleEnsurer interface {
	EnsureRole(ctx context.Context, name string) (*Role, error)
}

// SeedRoles makes sure every catalog role and its role-level permission rows
// exist. Safe to run on every start.
func SeedRoles(ctx context.Context, repo RoleEnsurer, logger Logger) error {
	for _, name := range RoleNames() {
		role, err := repo.EnsureRole(ctx, name)
		if err != nil {
			return fmt.Errorf("seeding role %s: %w", name, err)
		}
		logger.Info("role ready", "role", role.Name, "id", role.ID)
	}
	return nil
}
