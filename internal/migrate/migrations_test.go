package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"complyflow/internal/db"
	"complyflow/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, migrate.Migrate(ctx, conn))
	require.NoError(t, migrate.Migrate(ctx, conn))

	v, err := migrate.Version(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 2, v)

	_, err = conn.ExecContext(ctx, `INSERT INTO kv(key,value,updated_at) VALUES ('k','v','now')`)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,actor_id) VALUES ('now','t','k','a')`)
	require.NoError(t, err)
}
