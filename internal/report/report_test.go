package report

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/hostinfo"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/runner"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.ProjectDir = "/src/app"
	cfg.App.Name = "Anonymizer"
	cfg.App.Version = "1.0.0"
	return cfg
}

func writeArtifact(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func successOutcome(t *testing.T) *pipeline.Outcome {
	return &pipeline.Outcome{
		StartedAt: t0,
		EndedAt:   t0.Add(90 * time.Second),
		Stages: []pipeline.StageResult{
			{Name: "clean", Status: pipeline.StatusOK, Duration: time.Second},
			{Name: "freeze", Status: pipeline.StatusOK, Duration: time.Minute},
		},
		Artifacts: pipeline.Artifacts{
			Wheel:     writeArtifact(t, "app-1.0.0-py3-none-any.whl", "wheel"),
			Installer: writeArtifact(t, "app-setup.exe", "installer-bytes"),
		},
	}
}

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func TestNewResultSuccess(t *testing.T) {
	host := hostinfo.Snapshot{OS: "linux", Arch: "amd64"}
	r, err := NewResult("b1", testConfig(), successOutcome(t), nil, host, []string{"PYTHONHASHSEED=0"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSuccess, r.Outcome)
	assert.Equal(t, 0, r.ExitCode)
	assert.Equal(t, 90.0, r.Duration)
	assert.Empty(t, r.FailedStage)
	assert.Equal(t, host, r.Host)

	wheel, ok := r.Artifact("wheel")
	require.True(t, ok)
	assert.Equal(t, sum("wheel"), wheel.SHA256)
	assert.Equal(t, int64(5), wheel.Size)

	inst, ok := r.Artifact("installer")
	require.True(t, ok)
	assert.Equal(t, sum("installer-bytes"), inst.SHA256)
}

func TestNewResultFailure(t *testing.T) {
	out := &pipeline.Outcome{StartedAt: t0, EndedAt: t0, ExitCode: 3}
	runErr := &pipeline.StageError{Stage: "freeze", Err: &runner.ExitError{Command: "wine", Code: 3}}

	r, err := NewResult("b2", testConfig(), out, runErr, hostinfo.Snapshot{}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, r.Outcome)
	assert.Equal(t, 3, r.ExitCode)
	assert.Equal(t, "freeze", r.FailedStage)
	assert.Contains(t, r.Error, "exit status 3")
	assert.Empty(t, r.Artifacts)
}

func TestNewResultCancelled(t *testing.T) {
	out := &pipeline.Outcome{StartedAt: t0, EndedAt: t0, ExitCode: 130}
	runErr := &pipeline.StageError{Stage: "wheel", Err: fmt.Errorf("interrupted: %w", context.Canceled)}

	r, err := NewResult("b3", testConfig(), out, runErr, hostinfo.Snapshot{}, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, r.Outcome)
}

func TestNewResultMissingArtifact(t *testing.T) {
	out := &pipeline.Outcome{StartedAt: t0, EndedAt: t0, Artifacts: pipeline.Artifacts{Installer: "/nope/setup.exe"}}
	_, err := NewResult("b4", testConfig(), out, nil, hostinfo.Snapshot{}, nil)
	assert.Error(t, err)
}

func TestDigestStableAcrossRebuilds(t *testing.T) {
	a, err := Digest("installer", writeArtifact(t, "a.exe", "same"))
	require.NoError(t, err)
	b, err := Digest("installer", writeArtifact(t, "b.exe", "same"))
	require.NoError(t, err)
	assert.Equal(t, a.SHA256, b.SHA256)
}

func TestStoreSaveLoadIndex(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "runs"))

	r1, err := NewResult("id-1", testConfig(), successOutcome(t), nil, hostinfo.Snapshot{}, nil)
	require.NoError(t, err)
	path, err := store.Save(r1)
	require.NoError(t, err)
	assert.Equal(t, "20240501T120000Z_id-1.json", filepath.Base(path))
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	r2 := *r1
	r2.BuildID = "id-2"
	r2.Outcome = OutcomeFailed
	_, err = store.Save(&r2)
	require.NoError(t, err)

	entries, err := store.index()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "id-1", entries[0].BuildID)
	assert.Equal(t, OutcomeFailed, entries[1].Outcome)

	loaded, err := store.Load("id-1")
	require.NoError(t, err)
	assert.Equal(t, r1.Artifacts, loaded.Artifacts)
	assert.Equal(t, r1.Stages[1].Duration, loaded.Stages[1].Duration)

	_, err = store.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Remove("id-1"))
	_, err = store.Load("id-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreIndexEmpty(t *testing.T) {
	entries, err := NewStore(t.TempDir()).index()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMetrics(t *testing.T) {
	r, err := NewResult("id", testConfig(), successOutcome(t), nil, hostinfo.Snapshot{}, nil)
	require.NoError(t, err)

	m := NewMetrics()
	m.Record(r)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	text := buf.String()
	assert.Contains(t, text, "pyship_build_success 1")
	assert.Contains(t, text, "pyship_build_duration_seconds 90")
	assert.Contains(t, text, `pyship_stage_duration_seconds{stage="freeze",status="ok"} 60`)
	assert.Contains(t, text, `pyship_artifact_size_bytes{artifact="installer"} 15`)

	path := filepath.Join(t.TempDir(), "state", "metrics.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "# TYPE pyship_build_success gauge"))
}

func TestMetricsFailureResetsStages(t *testing.T) {
	m := NewMetrics()
	ok, err := NewResult("a", testConfig(), successOutcome(t), nil, hostinfo.Snapshot{}, nil)
	require.NoError(t, err)
	m.Record(ok)

	failed := &Result{Outcome: OutcomeFailed, ExitCode: 2, EndTime: t0,
		Stages: []pipeline.StageResult{{Name: "clean", Status: pipeline.StatusFailed}}}
	m.Record(failed)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	text := buf.String()
	assert.Contains(t, text, "pyship_build_success 0")
	assert.Contains(t, text, "pyship_build_exit_code 2")
	assert.NotContains(t, text, `stage="freeze"`)
	assert.NotContains(t, text, "pyship_artifact_size_bytes{")
}

func TestLogSummary(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.INFO, false)
	logger.SetOutput(&buf)

	r := &Result{BuildID: "x", Outcome: OutcomeFailed, FailedStage: "installer", ExitCode: 2}
	r.LogSummary(logger)
	assert.Contains(t, buf.String(), "build failed")
	assert.Contains(t, buf.String(), "stage=installer")
}
