package sudoapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KiloProjects/arena"
	"github.com/KiloProjects/arena/internal/config"
	"github.com/KiloProjects/arena/internal/repository"
)

// Bootstrap creates or refreshes the configured accounts and seeds the team registry
// with every competitor in the database, including those created at runtime.
func (s *BaseAPI) Bootstrap(ctx context.Context, accounts config.Accounts) error {
	for _, acc := range accounts.Hosts {
		if err := s.upsertAccount(ctx, acc, arena.RoleHost); err != nil {
			return err
		}
	}
	for _, acc := range accounts.Competitors {
		if err := s.upsertAccount(ctx, acc, arena.RoleCompetitor); err != nil {
			return err
		}
	}

	competitors, err := s.users.UsersWithRole(ctx, arena.RoleCompetitor)
	if err != nil {
		return fmt.Errorf("couldn't list teams: %w", err)
	}
	ids := make([]string, 0, len(competitors))
	for _, user := range competitors {
		ids = append(ids, user.ID)
	}
	s.teams.InsertMany(ids)
	s.logger.InfoContext(ctx, "Accounts ready", slog.Int("hosts", len(accounts.Hosts)), slog.Int("teams", len(ids)))
	return nil
}

func (s *BaseAPI) upsertAccount(ctx context.Context, acc config.Account, role arena.Role) error {
	hash, err := repository.HashPassword(acc.Password)
	if err != nil {
		return fmt.Errorf("couldn't hash password of %q: %w", acc.Name, err)
	}
	user := &arena.User{
		Username:     acc.Name,
		PasswordHash: hash,
		Role:         role,
	}
	if acc.DisplayName != "" {
		user.DisplayName = &acc.DisplayName
	}
	if _, err := s.users.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("couldn't upsert account %q: %w", acc.Name, err)
	}
	return nil
}
