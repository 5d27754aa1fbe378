package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-author/internal/db"
	"github.com/jonathan/resume-author/internal/events"
	"github.com/jonathan/resume-author/internal/gates"
	"github.com/jonathan/resume-author/internal/observability"
	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/pipeline/stages"
	"github.com/jonathan/resume-author/internal/types"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func resetRunFlags() {
	runConfigPath = ""
	runResumePath = ""
	runJobPath = ""
	runJobURL = ""
	runAPIKey = ""
	runDatabaseURL = ""
	runUseBrowser = false
	runVerbose = false
}

func TestLoadIntakeInput(t *testing.T) {
	resetRunFlags()
	runResumePath = writeTempFile(t, "resume.txt", "Wrote Go services.")
	runJobPath = writeTempFile(t, "job.txt", "Go required")

	intake, err := loadIntakeInput()
	require.NoError(t, err)
	assert.Equal(t, "Wrote Go services.", intake.ResumeText)
	assert.Equal(t, "Go required", intake.PostingText)
	assert.Empty(t, intake.PostingURL)
}

func TestLoadIntakeInput_RequiresResume(t *testing.T) {
	resetRunFlags()
	runJobPath = writeTempFile(t, "job.txt", "Go required")

	_, err := loadIntakeInput()
	assert.ErrorContains(t, err, "--resume is required")
}

func TestLoadIntakeInput_RequiresExactlyOneJobSource(t *testing.T) {
	resetRunFlags()
	runResumePath = writeTempFile(t, "resume.txt", "Wrote Go services.")

	_, err := loadIntakeInput()
	assert.ErrorContains(t, err, "exactly one of --job or --job-url")

	runJobPath = writeTempFile(t, "job.txt", "Go required")
	runJobURL = "https://example.com/job"
	_, err = loadIntakeInput()
	assert.ErrorContains(t, err, "exactly one of --job or --job-url")
}

func TestDriveForceAdvancesToCompletion(t *testing.T) {
	resetRunFlags()
	ctx := context.Background()
	store := db.NewMemStore()
	bus := events.NewBus()
	ctrl := pipeline.NewController(store, bus, gates.NewManager(store, bus), stages.Registry(stages.Deps{}))

	run, err := ctrl.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, store.SaveArtifact(ctx, run.ID, stages.ArtifactIntake, stages.IntakeInput{
		ResumeText:  "Wrote Go services handling 2M requests per day.",
		PostingText: "Platform Engineer\n- Go required\n- Kafka required",
	}))

	printer := observability.NewPrinter(os.Stderr)
	require.NoError(t, drive(ctx, ctrl, run.ID, printer))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusComplete, got.Status)
	assert.True(t, got.ForceAdvanced)

	final, err := store.GetTextArtifact(ctx, run.ID, stages.ArtifactResumeFinal)
	require.NoError(t, err)
	assert.Contains(t, final, "Platform Engineer")
}
