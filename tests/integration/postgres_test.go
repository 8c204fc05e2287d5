//go:build integration
// +build integration

package integration

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	orqlmapper "github.com/orql/orql-mapper"
)

// postgresURL returns POSTGRES_TEST_URL or starts a throwaway container.
func postgresURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("POSTGRES_TEST_URL"); url != "" {
		return url
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpassword"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return url
}

func TestPostgresLifecycle(t *testing.T) {
	ctx := context.Background()

	conn, err := orqlmapper.Open(ctx, postgresURL(t))
	require.NoError(t, err, "failed to connect to PostgreSQL")
	defer conn.Close(ctx)

	runLifecycle(t, conn, "public")
}
