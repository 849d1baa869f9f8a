package genai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veldt/genforge/internal/config"
	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/generation"
)

func testAdapter() *GeminiAdapter {
	return &GeminiAdapter{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		config: config.ComputeConfig{ModelName: "gemini-2.0-flash"},
		model:  "gemini-2.0-flash",
		jobs:   make(map[string]*job),
	}
}

// addJob registers a job record directly, bypassing Submit so tests can
// exercise the status surface without a live client.
func (a *GeminiAdapter) addJob(jobID string, state generation.JobState, result *generation.JobResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs[jobID] = &job{
		state:  state,
		result: result,
		cancel: func() {},
	}
}

func TestNewGeminiAdapter_Validation(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewGeminiAdapter(context.Background(), nil, config.ComputeConfig{
		GeminiAPIKey: "key", ModelName: "gemini-2.0-flash",
	})
	assert.Error(t, err)

	_, err = NewGeminiAdapter(context.Background(), logger, config.ComputeConfig{
		ModelName: "gemini-2.0-flash",
	})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewGeminiAdapter(context.Background(), logger, config.ComputeConfig{
		GeminiAPIKey: "key",
	})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestGeminiAdapter_SubmitValidation(t *testing.T) {
	t.Parallel()
	adapter := testAdapter()

	t.Run("unsupported work type", func(t *testing.T) {
		t.Parallel()
		_, err := adapter.Submit(context.Background(), generation.JobSpec{
			TaskID: uuid.New(),
			Type:   "audio_generation",
			Params: json.RawMessage(`{"prompt":"a song"}`),
		})
		assert.ErrorIs(t, err, generation.ErrUnsupportedWorkType)
	})

	t.Run("malformed params", func(t *testing.T) {
		t.Parallel()
		_, err := adapter.Submit(context.Background(), generation.JobSpec{
			TaskID: uuid.New(),
			Type:   domain.WorkTypeTextGeneration,
			Params: json.RawMessage(`{`),
		})
		assert.ErrorIs(t, err, generation.ErrSubmissionFailed)
	})

	t.Run("missing prompt", func(t *testing.T) {
		t.Parallel()
		_, err := adapter.Submit(context.Background(), generation.JobSpec{
			TaskID: uuid.New(),
			Type:   domain.WorkTypeTextGeneration,
			Params: json.RawMessage(`{"prompt":""}`),
		})
		assert.ErrorIs(t, err, generation.ErrSubmissionFailed)
	})
}

func TestGeminiAdapter_CheckStatus(t *testing.T) {
	t.Parallel()
	adapter := testAdapter()

	adapter.addJob("running", generation.JobStateRunning, nil)
	adapter.addJob("done", generation.JobStateSucceeded, &generation.JobResult{Success: true})
	adapter.addJob("broken", generation.JobStateFailed, &generation.JobResult{
		Success:     false,
		ErrorDetail: "model error",
	})

	status, err := adapter.CheckStatus(context.Background(), "running")
	require.NoError(t, err)
	assert.Equal(t, generation.JobStateRunning, status.State)
	assert.Equal(t, 50, status.Progress)

	status, err = adapter.CheckStatus(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, generation.JobStateSucceeded, status.State)
	assert.Equal(t, 100, status.Progress)

	status, err = adapter.CheckStatus(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, generation.JobStateFailed, status.State)
	assert.Equal(t, "model error", status.ErrorDetail)

	_, err = adapter.CheckStatus(context.Background(), "unknown")
	assert.ErrorIs(t, err, generation.ErrJobNotFound)
}

func TestGeminiAdapter_GetResults(t *testing.T) {
	t.Parallel()
	adapter := testAdapter()

	outputs := json.RawMessage(`{"text":"result"}`)
	adapter.addJob("done", generation.JobStateSucceeded, &generation.JobResult{
		Success: true,
		Outputs: outputs,
	})
	adapter.addJob("running", generation.JobStateRunning, nil)

	result, err := adapter.GetResults(context.Background(), "done")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, outputs, result.Outputs)

	// Non-terminal jobs have no results yet
	_, err = adapter.GetResults(context.Background(), "running")
	assert.Error(t, err)

	_, err = adapter.GetResults(context.Background(), "unknown")
	assert.ErrorIs(t, err, generation.ErrJobNotFound)
}

func TestGeminiAdapter_Cancel(t *testing.T) {
	t.Parallel()
	adapter := testAdapter()

	adapter.addJob("pending", generation.JobStatePending, nil)
	adapter.addJob("done", generation.JobStateSucceeded, &generation.JobResult{Success: true})

	cancelled, err := adapter.Cancel(context.Background(), "pending")
	require.NoError(t, err)
	assert.True(t, cancelled)

	status, err := adapter.CheckStatus(context.Background(), "pending")
	require.NoError(t, err)
	assert.Equal(t, generation.JobStateFailed, status.State)

	// A terminal job cannot be cancelled
	cancelled, err = adapter.Cancel(context.Background(), "done")
	require.NoError(t, err)
	assert.False(t, cancelled)

	_, err = adapter.Cancel(context.Background(), "unknown")
	assert.ErrorIs(t, err, generation.ErrJobNotFound)
}

func TestGeminiAdapter_FinishLosesToCancel(t *testing.T) {
	t.Parallel()
	adapter := testAdapter()

	adapter.addJob("racing", generation.JobStateRunning, nil)

	_, err := adapter.Cancel(context.Background(), "racing")
	require.NoError(t, err)

	// A late terminal result must not overwrite the cancellation.
	adapter.finish("racing", generation.JobResult{Success: true})

	result, err := adapter.GetResults(context.Background(), "racing")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "job cancelled", result.ErrorDetail)
}
