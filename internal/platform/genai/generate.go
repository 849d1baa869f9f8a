package genai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/veldt/genforge/internal/domain"
	"github.com/veldt/genforge/internal/generation"
	"google.golang.org/genai"
)

// textOutput is the result payload of a text generation job.
type textOutput struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

// imageOutput is the result payload of an image generation job.
type imageOutput struct {
	Model  string      `json:"model"`
	Images []imageData `json:"images"`
}

type imageData struct {
	MIMEType   string `json:"mime_type"`
	DataBase64 string `json:"data_base64"`
}

// run executes one generation job to its terminal state.
func (a *GeminiAdapter) run(ctx context.Context, jobID string, workType domain.WorkType, prompt string) {
	if !a.setRunning(jobID) {
		return
	}

	outputs, err := a.generate(ctx, workType, prompt)
	if err != nil {
		a.logger.Error("generation job failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		a.finish(jobID, generation.JobResult{
			Success:     false,
			ErrorDetail: err.Error(),
		})
		return
	}

	a.logger.Info("generation job succeeded", slog.String("job_id", jobID))
	a.finish(jobID, generation.JobResult{
		Success: true,
		Outputs: outputs,
	})
}

// generate calls the Gemini API with exponential backoff retry logic.
//
// It attempts the call up to config.MaxRetries times, using exponential
// backoff with jitter between retries for transient errors. Permanent
// errors (like content being blocked by safety filters) are returned
// immediately without retrying.
func (a *GeminiAdapter) generate(
	ctx context.Context,
	workType domain.WorkType,
	prompt string,
) (json.RawMessage, error) {
	maxRetries := a.config.MaxRetries
	baseDelaySeconds := a.config.RetryDelaySeconds
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Validate retry configuration
	if maxRetries < 0 {
		a.logger.WarnContext(ctx, "invalid max retries value, using default",
			slog.Int("max_retries", 3))
		maxRetries = 3
	}
	if baseDelaySeconds < 1 {
		a.logger.WarnContext(ctx, "invalid retry delay value, using default",
			slog.Int("base_delay_seconds", 2))
		baseDelaySeconds = 2
	}

	var genConfig *genai.GenerateContentConfig
	if workType == domain.WorkTypeImageGeneration {
		genConfig = &genai.GenerateContentConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		}
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptNum := attempt + 1
		a.logger.InfoContext(ctx, "making Gemini API call",
			slog.Int("attempt", attemptNum),
			slog.Int("max_attempts", maxRetries+1))

		resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), genConfig)

		outputs, err := a.extractOutputs(resp, err, workType)
		if err == nil {
			a.logger.InfoContext(ctx, "Gemini API call successful",
				slog.Int("attempt", attemptNum))
			return outputs, nil
		}

		a.logger.ErrorContext(ctx, "Gemini API call failed",
			slog.Int("attempt", attemptNum),
			slog.String("error", err.Error()))

		// Permanent errors are returned immediately without retrying.
		if errors.Is(err, generation.ErrContentBlocked) ||
			errors.Is(err, generation.ErrInvalidResponse) {
			return nil, err
		}

		if attempt >= maxRetries {
			return nil, fmt.Errorf("%w: exceeded maximum retry attempts (%d)",
				generation.ErrTransientFailure, maxRetries)
		}

		// delay = baseDelay * (2^attempt) * (0.5 + rand(0, 0.5))
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitterFactor := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitterFactor * float64(time.Second))

		a.logger.InfoContext(ctx, "retrying after delay",
			slog.Int("attempt", attemptNum),
			slog.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}

	return nil, fmt.Errorf("%w: failed after %d attempts",
		generation.ErrTransientFailure, maxRetries+1)
}

// extractOutputs validates one API response and maps it onto the result
// payload for the given work type.
func (a *GeminiAdapter) extractOutputs(
	resp *genai.GenerateContentResponse,
	callErr error,
	workType domain.WorkType,
) (json.RawMessage, error) {
	if callErr != nil {
		// API-level failures are assumed transient; the retry loop
		// decides whether to try again.
		return nil, callErr
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: blocked by safety filters", generation.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	switch workType {
	case domain.WorkTypeImageGeneration:
		var images []imageData
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil {
				images = append(images, imageData{
					MIMEType:   part.InlineData.MIMEType,
					DataBase64: base64.StdEncoding.EncodeToString(part.InlineData.Data),
				})
			}
		}
		if len(images) == 0 {
			return nil, fmt.Errorf("%w: no image data in response", generation.ErrInvalidResponse)
		}
		return json.Marshal(imageOutput{Model: a.model, Images: images})

	default:
		text := resp.Text()
		if text == "" {
			return nil, fmt.Errorf("%w: empty text in response", generation.ErrInvalidResponse)
		}
		return json.Marshal(textOutput{Model: a.model, Text: text})
	}
}
