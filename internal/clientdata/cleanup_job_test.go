package clientdata

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	job := NewCleanupJob(NewRepository(setupTestDB(t)), zerolog.Nop())
	assert.Equal(t, "client_data_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Store(ctx, TableExchangeRate, "EUR:USD", rate{Rate: 1.1}, -time.Hour))
	require.NoError(t, repo.Store(ctx, TableExchangeRate, "CHF:USD", rate{Rate: 1.13}, -time.Minute))
	require.NoError(t, repo.Store(ctx, TableExchangeRate, "GBP:USD", rate{Rate: 1.27}, time.Hour))

	job := NewCleanupJob(repo, zerolog.Nop())
	require.NoError(t, job.Run())

	var pairs []string
	rows, err := db.Query("SELECT pair FROM exchangerate")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var pair string
		require.NoError(t, rows.Scan(&pair))
		pairs = append(pairs, pair)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []string{"GBP:USD"}, pairs)
}

func TestCleanupJobRun_MissingTable(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.Exec("DROP TABLE exchangerate")
	require.NoError(t, err)

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())
	assert.Error(t, job.Run())
}
