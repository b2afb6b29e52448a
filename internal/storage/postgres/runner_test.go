package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/dataset-importer/internal/dataset"
	"github.com/JakeFAU/dataset-importer/internal/store"
)

func TestRunInTransactionCommits(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runner, err := NewRunner(mock)
	require.NoError(t, err)
	repo, err := NewDatasetRepository()
	require.NoError(t, err)

	hadiths := []dataset.Hadith{
		{BookID: "bukhari", Number: 1, Arabic: "a1", Translation: "t1"},
		{BookID: "bukhari", Number: 2, Arabic: "a2", Translation: "t2"},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hadiths").
		WithArgs("bukhari", 1, "a1", "t1", "bukhari", 2, "a2", "t2").
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err = runner.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return repo.UpsertHadiths(ctx, tx, hadiths)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionRollsBackOnStatementError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runner, err := NewRunner(mock)
	require.NoError(t, err)
	repo, err := NewDatasetRepository()
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO hadith_books").
		WillReturnError(&pgconn.PgError{Code: "23502", Message: "null value in column"})
	mock.ExpectRollback()

	err = runner.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return repo.UpsertHadithBooks(ctx, tx, []dataset.HadithBook{{ID: "x"}})
	})
	require.Error(t, err)
	assert.False(t, store.IsConnectionError(err))
	var pgErr *pgconn.PgError
	assert.ErrorAs(t, err, &pgErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionBeginFailureIsConnectionError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runner, err := NewRunner(mock)
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	called := false
	err = runner.RunInTransaction(context.Background(), func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, store.IsConnectionError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionAdminShutdownIsConnectionError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runner, err := NewRunner(mock)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bank_countries").
		WillReturnError(&pgconn.PgError{Code: "57P01", Message: "terminating connection"})
	mock.ExpectRollback()

	repo, err := NewDatasetRepository()
	require.NoError(t, err)
	err = runner.RunInTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return repo.UpsertBankCountries(ctx, tx, []dataset.BankCountry{{Code: "ID", Name: "Indonesia"}})
	})
	require.Error(t, err)
	assert.True(t, store.IsConnectionError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTransactionCommitFailure(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	runner, err := NewRunner(mock)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err = runner.RunInTransaction(context.Background(), func(context.Context, store.Tx) error {
		return nil
	})
	require.ErrorContains(t, err, "commit transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRunnerRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewRunner(nil)
	require.Error(t, err)
}
