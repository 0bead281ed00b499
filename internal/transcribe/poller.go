package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ProgressFunc surfaces deferred-job progress to the UI layer. Advisory only.
type ProgressFunc func(jobID string, progress int)

// Poller drives a deferred transcription job to a terminal outcome at a
// fixed interval with an attempt ceiling.
type Poller struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	interval    time.Duration
	maxAttempts int
	onProgress  ProgressFunc
	sleep       func(time.Duration)
}

type PollerOptions struct {
	Token       string
	Interval    time.Duration // default 5s
	MaxAttempts int           // default 60
	OnProgress  ProgressFunc
}

func NewPoller(baseURL string, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 60
	}
	return &Poller{
		baseURL:     baseURL,
		token:       opts.Token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		interval:    opts.Interval,
		maxAttempts: opts.MaxAttempts,
		onProgress:  opts.OnProgress,
		sleep:       time.Sleep,
	}
}

type jobStatusResponse struct {
	Status   string          `json:"status"`
	Result   json.RawMessage `json:"result"`
	Error    string          `json:"error"`
	Progress int             `json:"progress"`
}

// The deferred path tags its payload differently from the immediate path:
// result arrives either as a bare string or as an object with a text field.
type jobResultObject struct {
	Text string `json:"text"`
}

// Wait polls the job until a terminal status or the attempt ceiling. Ceiling
// exhaustion yields StatusPollTimeout, which the caller reports as "may
// still complete later" rather than as a chunk failure.
func (p *Poller) Wait(ctx context.Context, jobID string) Outcome {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			p.sleep(p.interval)
		}
		if ctx.Err() != nil {
			return Outcome{Status: StatusFailed, JobID: jobID, Err: ctx.Err()}
		}

		status, err := p.query(ctx, jobID)
		if err != nil {
			// A single flaky poll is not a terminal signal; the next tick
			// will ask again.
			slog.Warn("job status query failed", "job_id", jobID, "attempt", attempt, "error", err)
			continue
		}

		switch status.Status {
		case "processing":
			if p.onProgress != nil {
				p.onProgress(jobID, status.Progress)
			}
		case "completed":
			text, err := normalizeResult(status.Result)
			if err != nil {
				return Outcome{Status: StatusFailed, JobID: jobID, Err: fmt.Errorf("job %s result: %w", jobID, err)}
			}
			return Outcome{Status: StatusCompleted, JobID: jobID, Text: text}
		case "failed":
			msg := status.Error
			if msg == "" {
				msg = "job failed without detail"
			}
			return Outcome{Status: StatusFailed, JobID: jobID, Err: fmt.Errorf("job %s: %s", jobID, msg)}
		default:
			slog.Warn("unrecognized job status", "job_id", jobID, "status", status.Status)
			return Outcome{Status: StatusFailed, JobID: jobID, Err: fmt.Errorf("job %s: unrecognized status %q", jobID, status.Status)}
		}
	}

	return Outcome{
		Status: StatusPollTimeout,
		JobID:  jobID,
		Err:    fmt.Errorf("job %s still processing after %d polls", jobID, p.maxAttempts),
	}
}

func (p *Poller) query(ctx context.Context, jobID string) (jobStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/jobs/"+jobID, nil)
	if err != nil {
		return jobStatusResponse{}, fmt.Errorf("create request: %w", err)
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return jobStatusResponse{}, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return jobStatusResponse{}, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return jobStatusResponse{}, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var parsed jobStatusResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return jobStatusResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return parsed, nil
}

// normalizeResult accepts both encodings of a completed result and returns
// the transcribed text.
func normalizeResult(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var obj jobResultObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("unexpected result encoding: %w", err)
	}
	return obj.Text, nil
}
