//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"

	"github.com/epyc-go/epyc/internal/config"
	"github.com/epyc-go/epyc/internal/experiment"
	"github.com/epyc-go/epyc/internal/notebook"
)

func newTestBackend(ctx context.Context, t *testing.T) (*Backend, uuid.UUID) {
	t.Helper()

	testDB := config.SetupTestDatabaseFrom(ctx, t, "../../../migrations")
	t.Cleanup(func() {
		_ = testDB.Connection.Close()
		_ = testcontainers.TerminateContainer(testDB.Container)
	})

	notebookID := uuid.New()

	return New(&Connection{testDB.Connection}, notebookID), notebookID
}

func TestBackend_OpenOnEmptyDatabase(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	backend, _ := newTestBackend(ctx, t)

	snap, err := backend.Open(ctx)
	require.NoError(t, err)
	require.Equal(t, notebook.DefaultTag, snap.CurrentTag)
	require.Empty(t, snap.Sets)
}

func TestBackend_CommitAndOpenRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	backend, notebookID := newTestBackend(ctx, t)

	nb := notebook.New(notebook.WithBackend(backend))

	rec := experiment.Record{
		Parameters: experiment.Parameters{"x": experiment.Int64(1)},
		Metadata: experiment.Metadata{
			experiment.FieldStatus:   experiment.Bool(true),
			experiment.FieldEndTime:  experiment.Timestamp(time.Now()),
		},
		Results: experiment.Results{"y": experiment.Float64(2.5)},
	}
	require.NoError(t, nb.AddResult(rec, ""))
	require.NoError(t, nb.AddPendingResult(experiment.Parameters{"x": experiment.Int64(2)}, "job-1", ""))

	require.NoError(t, nb.Commit(ctx))

	reopened, err := notebook.Open(ctx, New(&Connection{backend.conn.DB}, notebookID))
	require.NoError(t, err)

	current := reopened.Current()
	require.Equal(t, 1, current.NumberOfResults())
	require.Equal(t, 1, current.NumberOfPendingResults())

	rows := current.AllRows()
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0].Parameters["x"].Int)
	require.Equal(t, 2.5, rows[0].Results["y"].Float)
}

func TestBackend_CommitSkipsCleanSets(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	backend, notebookID := newTestBackend(ctx, t)

	nb := notebook.New(notebook.WithBackend(backend))
	require.NoError(t, nb.Commit(ctx))

	reopened, err := notebook.Open(ctx, New(&Connection{backend.conn.DB}, notebookID))
	require.NoError(t, err)
	require.Equal(t, notebook.DefaultTag, reopened.CurrentTag())
}
