package history

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnitool/internal/bus"
	"omnitool/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSteps() []domain.ChainStep {
	return []domain.ChainStep{
		{ToolID: "base64", Options: domain.Options{"action": "decode"}},
		{ToolID: "json_formatter", Options: domain.Options{"indent": 2}},
	}
}

func TestRunMigrations_FreshDB(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(db, testLogger()))
	require.NoError(t, RunMigrations(db, testLogger()), "second run must be a no-op")

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestRunMigrations_RecoversPartialUpgrade(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	// Simulate a v1 database where one v2 column was added by hand.
	for _, stmt := range migrations[0].stmts {
		_, err = db.Exec(stmt)
		require.NoError(t, err)
	}
	_, err = db.Exec(`CREATE TABLE schema_version (version INTEGER PRIMARY KEY, description TEXT, applied_at DATETIME DEFAULT CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO schema_version (version, description) VALUES (1, 'base')`)
	require.NoError(t, err)
	_, err = db.Exec(`ALTER TABLE chain_runs ADD COLUMN step_count INTEGER NOT NULL DEFAULT 0`)
	require.NoError(t, err)

	require.NoError(t, RunMigrations(db, testLogger()))
	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, version)
}

func TestGetSchemaVersion_EmptyDB(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestStore_RecordAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	run := NewRun("eyJhIjogMX0=", sampleSteps(), []domain.StepResult{
		{Output: `{"a": 1}`},
		{Output: "{\n  \"a\": 1\n}"},
	}, 12*time.Millisecond)

	id, err := s.Record(ctx, run)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "eyJhIjogMX0=", got.Input)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "json_formatter", got.Steps[1].ToolID)
	assert.Equal(t, run.Results, got.Results)
	assert.False(t, got.TransportFailed)
	assert.Equal(t, -1, got.FailedStep)
	assert.Equal(t, 12*time.Millisecond, got.Duration)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestStore_GetMissing(t *testing.T) {
	s := testStore(t)
	got, err := s.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewRun_Summary(t *testing.T) {
	domainErr := NewRun("x", sampleSteps(), []domain.StepResult{{Error: "Invalid Base64"}, {}}, 0)
	assert.False(t, domainErr.TransportFailed)
	assert.Equal(t, 0, domainErr.FailedStep)

	aborted := NewRun("x", sampleSteps(), []domain.StepResult{{Error: "connection refused"}}, 0)
	assert.True(t, aborted.TransportFailed)
}

func TestStore_RecentNewestFirst(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i, input := range []string{"first", "second", "third"} {
		run := NewRun(input, nil, nil, 0)
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := s.Record(ctx, run)
		require.NoError(t, err)
	}

	runs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].Input)
	assert.Equal(t, "second", runs[1].Input)
}

func TestStore_Prune(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	old := NewRun("old", nil, nil, 0)
	old.CreatedAt = time.Now().AddDate(0, 0, -40)
	_, err := s.Record(ctx, old)
	require.NoError(t, err)
	_, err = s.Record(ctx, NewRun("new", nil, nil, 0))
	require.NoError(t, err)

	n, err := s.Prune(ctx, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_AttachRecordsCompletedRuns(t *testing.T) {
	s := testStore(t)
	events := bus.NewEventBus(testLogger())
	detach := s.Attach(events)

	events.Emit(bus.Event{
		Type: bus.EventRunCompleted,
		Payload: map[string]any{
			"input":    "aGk=",
			"steps":    sampleSteps()[:1],
			"results":  []domain.StepResult{{Output: "hi"}},
			"duration": 3 * time.Millisecond,
		},
	})

	runs, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "aGk=", runs[0].Input)
	assert.Equal(t, []domain.StepResult{{Output: "hi"}}, runs[0].Results)

	detach()
	events.Emit(bus.Event{Type: bus.EventRunCompleted, Payload: map[string]any{"input": "ignored"}})
	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
