package db

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/tellmenow/internal/store"
)

func TestWrapQueryError(t *testing.T) {
	assert.NoError(t, wrapQueryError(nil))

	plain := errors.New("boom")
	assert.Same(t, plain, wrapQueryError(plain))

	exists := wrapQueryError(&surrealdb.QueryError{Message: "Database record `job:abc` already exists"})
	assert.ErrorIs(t, exists, store.ErrAlreadyExists)

	conflict := wrapQueryError(&surrealdb.QueryError{Message: "Transaction conflict: retry"})
	assert.ErrorIs(t, conflict, ErrTransactionConflict)

	ok, err := claimResult(conflict)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordKey(t *testing.T) {
	key, err := recordKey(surrealmodels.NewRecordID("job", "abc123"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)

	_, err = recordKey(surrealmodels.NewRecordID("job", 42))
	assert.Error(t, err)
}

func TestJobRowStatus(t *testing.T) {
	row := jobRow{ID: surrealmodels.NewRecordID("job", "abc"), Query: "q", SkillID: "s", Status: "generating"}
	job, err := row.toJob()
	require.NoError(t, err)
	assert.Equal(t, "abc", job.ID)
	assert.True(t, job.Status.Transient())

	row.Status = "paused"
	_, err = row.toJob()
	assert.ErrorContains(t, err, `unknown status "paused"`)
}

func TestConfigAuth(t *testing.T) {
	cfg := Config{Namespace: "ns", Database: "main", Username: "u", Password: "p"}
	assert.Equal(t, surrealdb.Auth{Username: "u", Password: "p"}, cfg.auth(), "root is the default level")

	cfg.AuthLevel = "database"
	assert.Equal(t, surrealdb.Auth{Namespace: "ns", Database: "main", Username: "u", Password: "p"}, cfg.auth())
}
