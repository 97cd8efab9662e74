package seed

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/baechuer/pharmacy-auth/internal/domain"
)

// Hasher is the minimal surface we need for seeding.
type Hasher interface {
	Hash(password string) (string, error)
}

// Repo is satisfied by both the memory and the postgres user repos.
type Repo interface {
	Create(ctx context.Context, u domain.User) (domain.User, error)
}

type Account struct {
	Email        string
	Role         domain.Role
	Password     string
	SecondFactor bool
}

// DevAccounts is one account per role for local development.
// Back-office roles that handle stock and user admin require a second factor.
var DevAccounts = []Account{
	{Email: "admin@pharmacy.local", Role: domain.RoleAdmin, Password: "AdminPassword123!", SecondFactor: true},
	{Email: "staff@pharmacy.local", Role: domain.RoleStaff, Password: "StaffPassword123!", SecondFactor: true},
	{Email: "supervisor@pharmacy.local", Role: domain.RoleSupervisor, Password: "SupervisorPassword123!"},
	{Email: "assistant@pharmacy.local", Role: domain.RoleAssistant, Password: "AssistantPassword123!"},
	{Email: "customer@pharmacy.local", Role: domain.RoleCustomer, Password: "CustomerPassword123!"},
}

// Users creates accounts in repo. Safe to call multiple times: existing
// accounts are left alone. Returns how many were created.
func Users(ctx context.Context, repo Repo, hasher Hasher, accounts []Account, log zerolog.Logger) int {
	created := 0
	for _, a := range accounts {
		hash, err := hasher.Hash(a.Password)
		if err != nil {
			log.Warn().Err(err).Str("email", a.Email).Msg("seed: hash failed")
			continue
		}

		u := domain.User{
			ID:                   uuid.NewString(),
			Email:                domain.NormalizeIdentifier(a.Email),
			PasswordHash:         hash,
			Role:                 a.Role,
			EmailVerified:        true,
			SecondFactorRequired: a.SecondFactor,
		}

		if _, err := repo.Create(ctx, u); err != nil {
			if !domain.Is(err, "user_exists") {
				log.Warn().Err(err).Str("email", a.Email).Msg("seed: create failed")
			}
			continue
		}
		created++
	}

	log.Info().Int("created", created).Int("accounts", len(accounts)).Msg("seed: users seeded")
	return created
}
