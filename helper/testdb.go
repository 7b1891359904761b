package helper

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	testDatabaseName     = "knowledge_test"
	testDatabaseUser     = "postgres"
	testDatabasePassword = "postgres"
)

// MustStartPostgresContainer starts a pgvector-enabled Postgres container
// for integration tests and returns its teardown function and mapped port.
func MustStartPostgresContainer() (func(ctx context.Context, opts ...testcontainers.TerminateOption) error, string, error) {
	// .env is optional, used for local overrides
	_ = godotenv.Load("../.env")

	ctx := context.Background()
	container, err := postgres.Run(
		ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase(testDatabaseName),
		postgres.WithUsername(testDatabaseUser),
		postgres.WithPassword(testDatabasePassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, "", err
	}

	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container.Terminate, "", err
	}

	return container.Terminate, port.Port(), nil
}

// SetTestDatabaseConfigEnvs points the configuration envs at the test
// container for the duration of the test.
func SetTestDatabaseConfigEnvs(t *testing.T, port string) {
	t.Setenv("KNOWLEDGE_DB_HOST", "localhost")
	t.Setenv("KNOWLEDGE_DB_PORT", port)
	t.Setenv("KNOWLEDGE_DB_USER", testDatabaseUser)
	t.Setenv("KNOWLEDGE_DB_PASSWORD", testDatabasePassword)
	t.Setenv("KNOWLEDGE_DB_DATABASE", testDatabaseName)
	t.Setenv("KNOWLEDGE_DB_SCHEMA", "public")
}

// NewTestDatabase opens a database connection for tests with a discard
// logger so test output stays readable.
func NewTestDatabase(config *DatabaseConfiguration) *Database {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewDatabase("knowledge_test", config, logger)
}
