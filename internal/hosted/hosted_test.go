package hosted

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/erazemk/rezervator/internal/model"
	"github.com/erazemk/rezervator/internal/store"
	"github.com/erazemk/rezervator/internal/store/storetest"
)

func TestDSN(t *testing.T) {
	dsn, err := Config{Host: "db.example.com", User: "app", Password: "pw", DBName: "rez"}.DSN()
	require.NoError(t, err)
	assert.Equal(t, "host=db.example.com user=app password=pw dbname=rez port=5432 sslmode=require", dsn)

	_, err = Config{DBName: "rez"}.DSN()
	var cfgErr *model.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "postgres.host", cfgErr.Key)
	assert.Equal(t, model.RemedyCheckConfig, model.RemedyFor(err))
}

func TestClassify(t *testing.T) {
	dup := classify("creating item", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23505", ConstraintName: "rezervator_items_name_category"}))
	var dupErr *model.DuplicateError
	require.ErrorAs(t, dup, &dupErr)
	assert.Equal(t, "rezervator_items_name_category", dupErr.Field)

	auth := classify("listing items", &pgconn.PgError{Code: "28P01"})
	assert.Equal(t, model.RemedyCheckConfig, model.RemedyFor(auth))

	other := classify("listing items", errors.New("boom"))
	assert.EqualError(t, other, "listing items: boom")
	assert.Equal(t, model.RemedyNone, model.RemedyFor(other))
}

// TestBackend runs the backend suite against a real server. Set
// REZERVATOR_TEST_POSTGRES_DSN to a disposable database to enable it.
func TestBackend(t *testing.T) {
	dsn := os.Getenv("REZERVATOR_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("REZERVATOR_TEST_POSTGRES_DSN not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	storetest.Run(t, func(t *testing.T) store.Backend {
		for _, table := range []string{AuditTable, CommitmentTable, AttributeTable, ItemTable} {
			require.NoError(t, db.Exec("DELETE FROM "+table).Error)
		}
		return New(db)
	})
}
