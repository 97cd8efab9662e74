//go:build integration

package cases

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/baechuer/pharmacy-auth/internal/application/auth"
	"github.com/baechuer/pharmacy-auth/internal/domain"
	pg "github.com/baechuer/pharmacy-auth/internal/infrastructure/db/postgres"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/messaging/rabbitmq"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/redis"
	"github.com/baechuer/pharmacy-auth/internal/infrastructure/security"
	itinfra "github.com/baechuer/pharmacy-auth/test/integration/infra"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	itExchange   = "it.pharmacy.events"
	itMasterSalt = "integration-master-salt"
	itMaxTries   = 3
)

type Deps struct {
	DB    *sql.DB
	RDB   *goredis.Client
	Redis *redis.Client
	AMQP  *amqp.Connection

	Users  *pg.UserRepo
	Hasher *security.BcryptHasher
	Mailer *rabbitmq.CodeMailer

	Svc *auth.Service
}

func MustNewDeps(t *testing.T) *Deps {
	t.Helper()
	env := itinfra.LoadEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, itinfra.WaitPostgres(ctx, env.PostgresDSN), env.String())
	require.NoError(t, itinfra.WaitRedis(ctx, env.RedisAddr), env.String())
	require.NoError(t, itinfra.WaitRabbit(ctx, env.RabbitURL), env.String())

	// --- Postgres ---
	db, err := sql.Open("pgx", env.PostgresDSN)
	require.NoError(t, err)
	require.NoError(t, pg.EnsureSchema(ctx, db))

	// --- Redis ---
	rdb := goredis.NewClient(&goredis.Options{Addr: env.RedisAddr})
	rc := redis.New(env.RedisAddr, "", 0)
	require.NoError(t, rc.Ping(ctx))

	// --- RabbitMQ ---
	conn, err := amqp.Dial(env.RabbitURL)
	require.NoError(t, err)
	require.NoError(t, itinfra.EnsureCodeQueue(conn, itExchange))

	mailer, err := rabbitmq.NewCodeMailer(env.RabbitURL, itExchange, zerolog.Nop())
	require.NoError(t, err)

	users := pg.NewUserRepo(db)
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	codec := security.NewJWTCodec("integration-test-secret-integration", "pharmacy-auth-it", time.Hour)

	svc := auth.NewService(
		users,
		hasher,
		codec,
		redis.NewVerificationStore(rc),
		redis.NewRevocationStore(rc),
		mailer,
		auth.Config{
			CodeTTL:         10 * time.Minute,
			CodeMaxAttempts: itMaxTries,
			MasterCodeSalt:  itMasterSalt,
		},
	)

	d := &Deps{
		DB: db, RDB: rdb, Redis: rc, AMQP: conn,
		Users:  users,
		Hasher: hasher,
		Mailer: mailer,
		Svc:    svc,
	}
	t.Cleanup(d.Close)

	require.NoError(t, itinfra.ResetAll(ctx, db, rdb, conn))
	return d
}

func (d *Deps) Close() {
	_ = d.Mailer.Close()
	_ = d.AMQP.Close()
	_ = d.Redis.Close()
	_ = d.RDB.Close()
	_ = d.DB.Close()
}

// MustCreateUser inserts a verified account.
func (d *Deps) MustCreateUser(t *testing.T, email, password string, role domain.Role, secondFactor bool) {
	t.Helper()

	hash, err := d.Hasher.Hash(password)
	require.NoError(t, err)

	_, err = d.Users.Create(context.Background(), domain.User{
		ID:                   uuid.NewString(),
		Email:                email,
		PasswordHash:         hash,
		Role:                 role,
		EmailVerified:        true,
		SecondFactorRequired: secondFactor,
	})
	require.NoError(t, err)
}
