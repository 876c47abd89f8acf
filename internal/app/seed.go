package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/raibee/backend/internal/auth"
	"github.com/raibee/backend/internal/logging"
	"github.com/raibee/backend/internal/models"
	"github.com/raibee/backend/internal/repositories"
)

type demoAccount struct {
	name     string
	email    string
	password string
	role     models.Role
}

var demoAccounts = []demoAccount{
	{name: "Rai Bee", email: "admin@raibee.test", password: "DemoPass123", role: models.RoleCreator},
	{name: "Fan", email: "fan@raibee.test", password: "FanPass123", role: models.RoleFan},
}

type userSeeder interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

func runSeed(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected seed name (e.g. demo)")
	}
	if args[0] != "demo" {
		return fmt.Errorf("unknown seed %q", args[0])
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	ctx = logging.WithLogger(ctx, logger)

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	return seedDemo(ctx, st.users)
}

// seedDemo creates the demo creator and fan accounts unless an account with
// the same email already exists.
func seedDemo(ctx context.Context, users userSeeder) error {
	logger := logging.FromContext(ctx)

	for _, acct := range demoAccounts {
		if _, err := users.FindByEmail(ctx, acct.email); err == nil {
			logger.Info("demo account already present", "email", acct.email)
			continue
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("look up %s: %w", acct.email, err)
		}

		hashed, err := auth.HashPassword(acct.password)
		if err != nil {
			return err
		}
		err = users.Create(ctx, models.User{
			ID:        uuid.NewString(),
			Name:      acct.name,
			Email:     acct.email,
			Password:  hashed,
			Role:      acct.role,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil && !errors.Is(err, repositories.ErrConflict) {
			return fmt.Errorf("create %s: %w", acct.email, err)
		}
		logger.Info("demo account created", "email", acct.email, "role", acct.role)
	}
	return nil
}
