package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

// Notifier receives advisory status events for the UI layer. Implementations
// must not block; the pipeline never waits on them.
type Notifier interface {
	ChunkSubmitting(sequence int)
	ChunkRetrying(sequence, attempt int)
	ChunkCompleted(sequence int)
	ChunkFailed(sequence int, err error)
}

// NopNotifier discards all status events.
type NopNotifier struct{}

func (NopNotifier) ChunkSubmitting(int)    {}
func (NopNotifier) ChunkRetrying(int, int) {}
func (NopNotifier) ChunkCompleted(int)     {}
func (NopNotifier) ChunkFailed(int, error) {}

// SubmitRequest is one transcription unit: a chunk of a live recording or a
// whole short upload.
type SubmitRequest struct {
	Payload        []byte
	Filename       string
	Language       string
	Model          string
	ChunkNumber    *int
	ElementID      string
	HasOverlap     bool
	OverlapSeconds float64
	OverlapPercent float64
	// Timeout overrides the client default for this call. Chunked payloads
	// from continuous recording use the longer window.
	Timeout time.Duration
}

func (r SubmitRequest) sequence() int {
	if r.ChunkNumber != nil {
		return *r.ChunkNumber
	}
	return 0
}

// Client submits audio to the transcription service over a single multipart
// request, with a per-call timeout, bounded retry on transient failures, and
// deferred-job detection.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	notifier   Notifier
	sleep      func(time.Duration)
}

type ClientOptions struct {
	Token      string
	Timeout    time.Duration // default 60s
	MaxRetries int           // default 2
	Notifier   Notifier
}

func NewClient(baseURL string, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = 2
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	return &Client{
		baseURL:    baseURL,
		token:      opts.Token,
		httpClient: &http.Client{},
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		backoff:    time.Second,
		notifier:   opts.Notifier,
		sleep:      time.Sleep,
	}
}

type submitResponse struct {
	Text   string `json:"text"`
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	Error  string `json:"error"`
}

// retryableError marks failures worth another attempt: timeouts, generic
// network failures, 5xx responses. Everything else is terminal.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// Submit sends the request and resolves it to an Outcome. The attempt count
// is exactly 1 + maxRetries for persistently transient failures; terminal
// failures return after the attempt that observed them. A deferred
// acknowledgment is returned as a non-terminal Outcome carrying the job id.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (Outcome, error) {
	seq := req.sequence()
	c.notifier.ChunkSubmitting(seq)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.notifier.ChunkRetrying(seq, attempt)
			c.sleep(c.backoff)
		}

		outcome, err := c.doSubmit(ctx, req)
		if err == nil {
			if outcome.Status == StatusCompleted {
				c.notifier.ChunkCompleted(seq)
			}
			return outcome, nil
		}
		if !isRetryable(err) {
			c.notifier.ChunkFailed(seq, err)
			return Outcome{Status: StatusFailed, Err: err}, err
		}
		lastErr = err
	}

	err := fmt.Errorf("submit chunk %d: %d attempts exhausted: %w", seq, 1+c.maxRetries, lastErr)
	c.notifier.ChunkFailed(seq, err)
	return Outcome{Status: StatusFailed, Err: err}, err
}

func (c *Client) doSubmit(ctx context.Context, req SubmitRequest) (Outcome, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	filename := req.Filename
	if filename == "" {
		filename = "audio.wav"
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return Outcome{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(req.Payload); err != nil {
		return Outcome{}, fmt.Errorf("write audio payload: %w", err)
	}

	fields := map[string]string{
		"language": req.Language,
		"model":    req.Model,
	}
	if req.ChunkNumber != nil {
		fields["chunk_number"] = strconv.Itoa(*req.ChunkNumber)
	}
	if req.ElementID != "" {
		fields["element_id"] = req.ElementID
	}
	if req.HasOverlap {
		fields["has_overlap"] = "true"
		if req.OverlapSeconds > 0 {
			fields["overlap_seconds"] = strconv.FormatFloat(req.OverlapSeconds, 'f', 2, 64)
		}
		if req.OverlapPercent > 0 {
			fields["overlap_percentage"] = strconv.FormatFloat(req.OverlapPercent, 'f', 2, 64)
		}
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return Outcome{}, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return Outcome{}, fmt.Errorf("finish multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transcribe", &body)
	if err != nil {
		return Outcome{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Outcome{}, &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, &retryableError{err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return Outcome{}, &retryableError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(raw, 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{}, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var parsed submitResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Outcome{}, fmt.Errorf("decode response: %w", err)
	}

	switch {
	case parsed.Error != "":
		return Outcome{}, fmt.Errorf("service rejected submission: %s", parsed.Error)
	case parsed.Status == "processing" && parsed.JobID != "":
		return Outcome{Status: StatusDeferred, JobID: parsed.JobID}, nil
	default:
		return Outcome{Status: StatusCompleted, Text: parsed.Text}, nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
