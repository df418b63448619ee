// Package apify runs scraping actors on the Apify platform and turns their
// datasets into items the pipeline can adapt or summarize.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/apperrors"
	"github.com/trendagents/trend-pipeline/internal/calllog"
	"github.com/trendagents/trend-pipeline/internal/config"
)

const (
	defaultBaseURL      = "https://api.apify.com/v2"
	defaultWaitSeconds  = 180
	defaultGraceSeconds = 120
	defaultPollInterval = 5 * time.Second
	timeoutMargin       = 30 * time.Second
)

// Status is the lifecycle state of an actor run
type Status string

const (
	StatusReady     Status = "READY"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMED_OUT"
	StatusAborted   Status = "ABORTED"
)

// Pending reports whether the run is queued or still executing.
func (s Status) Pending() bool {
	return s == StatusReady || s == StatusRunning
}

// Terminal reports whether the run has finished, successfully or not.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusAborted:
		return true
	}
	return false
}

// Options configures a Client
type Options struct {
	BaseURL            string
	Token              string
	DefaultWaitSeconds int
	// GraceSeconds bounds polling after waitForFinish returns a pending run.
	// Zero disables polling.
	GraceSeconds   int
	ForceInputJSON string
	PollInterval   time.Duration
}

// Client starts actor runs and collects their dataset items
type Client struct {
	client       *resty.Client
	baseURL      string
	token        string
	waitSeconds  int
	grace        time.Duration
	pollInterval time.Duration
	forcedInput  map[string]any
	now          func() time.Time
}

// RunOptions describes one actor run
type RunOptions struct {
	ActorID string
	// Input is the caller payload; it has the highest precedence.
	Input map[string]any
	// DefaultInput is used verbatim when neither the caller nor the forced
	// override supplied any key.
	DefaultInput map[string]any
	WaitSeconds  int
	Build        string
	MemoryMBytes int
}

// RunResult is the outcome of a successful run
type RunResult struct {
	ActorID   string         `json:"actor_id"`
	RunID     string         `json:"run_id"`
	DatasetID string         `json:"dataset_id,omitempty"`
	Status    Status         `json:"status"`
	Input     map[string]any `json:"input"`
	Items     []any          `json:"items"`
	// NoDataset is set when the run succeeded without producing a dataset.
	NoDataset bool `json:"no_dataset,omitempty"`
}

type runEnvelope struct {
	Data runInfo `json:"data"`
}

type runInfo struct {
	ID               string `json:"id"`
	Status           Status `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// NewClient creates a new Apify client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.DefaultWaitSeconds <= 0 {
		opts.DefaultWaitSeconds = defaultWaitSeconds
	}
	if opts.GraceSeconds < 0 {
		opts.GraceSeconds = 0
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	return &Client{
		client: resty.New().
			SetHeader("User-Agent", "Trend-Agents/1.0").
			SetHeader("Accept", "application/json"),
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		token:        opts.Token,
		waitSeconds:  opts.DefaultWaitSeconds,
		grace:        time.Duration(opts.GraceSeconds) * time.Second,
		pollInterval: opts.PollInterval,
		forcedInput:  parseForcedInput(opts.ForceInputJSON),
		now:          time.Now,
	}
}

// NewClientFromConfig creates a client from application configuration
func NewClientFromConfig(cfg *config.Config) *Client {
	return NewClient(Options{
		BaseURL:            cfg.ApifyBaseURL,
		Token:              cfg.ApifyToken,
		DefaultWaitSeconds: cfg.ApifyDefaultTimeout,
		GraceSeconds:       cfg.ApifyExtraGrace,
		ForceInputJSON:     cfg.ApifyForceInputJSON,
	})
}

// parseForcedInput decodes the operator override document. Anything other
// than a JSON object is ignored with a warning.
func parseForcedInput(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		logrus.Warnf("Failed to parse APIFY_FORCE_INPUT_JSON: %v", err)
		return nil
	}
	forced, ok := decoded.(map[string]any)
	if !ok {
		logrus.Warn("APIFY_FORCE_INPUT_JSON is not an object; ignoring")
		return nil
	}
	return forced
}

// RunActor starts an actor, waits for it within the configured wait and
// grace windows, and fetches its dataset items.
func (c *Client) RunActor(ctx context.Context, opts RunOptions) (*RunResult, error) {
	actorID := NormalizeActorID(opts.ActorID)
	if c.token == "" {
		return nil, &apperrors.ConfigurationError{Setting: "APIFY_TOKEN"}
	}

	merged := MergeInput(opts.Input, c.forcedInput, opts.DefaultInput)

	waitSeconds := opts.WaitSeconds
	if waitSeconds <= 0 {
		waitSeconds = c.waitSeconds
	}
	params := map[string]string{
		"token":         c.token,
		"waitForFinish": strconv.Itoa(waitSeconds),
	}
	if opts.Build != "" {
		params["build"] = opts.Build
	}
	if opts.MemoryMBytes > 0 {
		params["memoryMbytes"] = strconv.Itoa(opts.MemoryMBytes)
	}

	run, err := c.startRun(ctx, actorID, params, merged, waitSeconds)
	if err != nil {
		return nil, err
	}

	if run.Status.Pending() && c.grace > 0 && run.ID != "" {
		run, err = c.awaitRun(ctx, actorID, run)
		if err != nil {
			return nil, err
		}
	}

	if run.Status != StatusSucceeded {
		return nil, &apperrors.ExternalServiceError{
			Op: fmt.Sprintf("actor '%s' finished with status '%s' (run=%s)", actorID, run.Status, run.ID),
		}
	}

	result := &RunResult{
		ActorID:   actorID,
		RunID:     run.ID,
		DatasetID: run.DefaultDatasetID,
		Status:    run.Status,
		Input:     merged,
		Items:     []any{},
	}

	if run.DefaultDatasetID == "" {
		logrus.Infof("Apify run %s for %s produced no dataset", run.ID, actorID)
		result.NoDataset = true
		return result, nil
	}

	items, err := c.fetchItems(ctx, actorID, run.DefaultDatasetID)
	if err != nil {
		return nil, err
	}
	result.Items = items

	logrus.Infof("Apify dataset for %s returned %d items", actorID, len(items))
	return result, nil
}

func (c *Client) startRun(ctx context.Context, actorID string, params map[string]string, input map[string]any, waitSeconds int) (runInfo, error) {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(waitSeconds)*time.Second+timeoutMargin)
	defer cancel()

	call := calllog.Start("apify.run:"+actorID, input)
	resp, err := c.client.R().
		SetContext(reqCtx).
		SetQueryParams(params).
		SetBody(map[string]any{"input": input}).
		Post(fmt.Sprintf("%s/acts/%s/runs", c.baseURL, actorID))
	call.Done()

	op := fmt.Sprintf("failed to start actor '%s'", actorID)
	if err != nil {
		return runInfo{}, &apperrors.ExternalServiceError{Op: op, Err: err}
	}
	if resp.StatusCode() >= 400 {
		return runInfo{}, &apperrors.ExternalServiceError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var envelope runEnvelope
	if err := decodeEnvelope(resp.Body(), &envelope); err != nil {
		return runInfo{}, &apperrors.ExternalServiceError{Op: op, Err: fmt.Errorf("failed to parse run response: %w", err)}
	}
	return envelope.Data, nil
}

// awaitRun polls a pending run until it reaches a terminal status or the
// grace window closes, whichever comes first. The last observed state is
// returned either way.
func (c *Client) awaitRun(ctx context.Context, actorID string, run runInfo) (runInfo, error) {
	deadline := c.now().Add(c.grace)
	logrus.Debugf("Apify run %s is %s, polling for up to %v", run.ID, run.Status, c.grace)

	for c.now().Before(deadline) {
		select {
		case <-ctx.Done():
			return run, &apperrors.ExternalServiceError{
				Op:  fmt.Sprintf("polling run '%s' of actor '%s' interrupted", run.ID, actorID),
				Err: ctx.Err(),
			}
		case <-time.After(c.pollInterval):
		}

		latest, err := c.getRun(ctx, run.ID)
		if err != nil {
			return run, err
		}
		// keep the dataset id from the start response if the poll omitted it
		if latest.DefaultDatasetID == "" {
			latest.DefaultDatasetID = run.DefaultDatasetID
		}
		if latest.ID == "" {
			latest.ID = run.ID
		}
		run = latest
		if run.Status.Terminal() {
			break
		}
	}
	return run, nil
}

func (c *Client) getRun(ctx context.Context, runID string) (runInfo, error) {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.waitSeconds)*time.Second+timeoutMargin)
	defer cancel()

	call := calllog.Start("apify.run_status:"+runID, nil)
	resp, err := c.client.R().
		SetContext(reqCtx).
		SetQueryParam("token", c.token).
		Get(fmt.Sprintf("%s/actor-runs/%s", c.baseURL, runID))
	call.Done()

	op := fmt.Sprintf("failed to fetch run '%s'", runID)
	if err != nil {
		return runInfo{}, &apperrors.ExternalServiceError{Op: op, Err: err}
	}
	if resp.StatusCode() >= 400 {
		return runInfo{}, &apperrors.ExternalServiceError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	var envelope runEnvelope
	if err := decodeEnvelope(resp.Body(), &envelope); err != nil {
		return runInfo{}, &apperrors.ExternalServiceError{Op: op, Err: fmt.Errorf("failed to parse run response: %w", err)}
	}
	return envelope.Data, nil
}

func (c *Client) fetchItems(ctx context.Context, actorID, datasetID string) ([]any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(c.waitSeconds)*time.Second+timeoutMargin)
	defer cancel()

	call := calllog.Start("apify.dataset:"+actorID, nil)
	resp, err := c.client.R().
		SetContext(reqCtx).
		SetQueryParams(map[string]string{
			"token": c.token,
			"clean": "1",
		}).
		Get(fmt.Sprintf("%s/datasets/%s/items", c.baseURL, datasetID))
	call.Done()

	op := fmt.Sprintf("failed to fetch dataset for '%s'", actorID)
	if err != nil {
		return nil, &apperrors.ExternalServiceError{Op: op, Err: err}
	}
	if resp.StatusCode() >= 400 {
		return nil, &apperrors.ExternalServiceError{Op: op, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	items, err := decodeItems(resp.Body())
	if err != nil {
		return nil, &apperrors.ExternalServiceError{Op: fmt.Sprintf("dataset parse error for '%s'", actorID), Err: err}
	}
	return items, nil
}

func decodeEnvelope(body []byte, envelope *runEnvelope) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, envelope)
}

// decodeItems accepts the dataset body in whatever shape it arrives: a list
// is returned as-is, a single value becomes a one-element list, and an
// empty body or empty value becomes an empty list.
func decodeItems(body []byte) ([]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []any{}, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return nil, err
	}

	switch typed := decoded.(type) {
	case []any:
		return typed, nil
	case nil:
		return []any{}, nil
	case map[string]any:
		if len(typed) == 0 {
			return []any{}, nil
		}
	case string:
		if typed == "" {
			return []any{}, nil
		}
	case bool:
		if !typed {
			return []any{}, nil
		}
	case json.Number:
		if f, err := typed.Float64(); err == nil && f == 0 {
			return []any{}, nil
		}
	}
	return []any{decoded}, nil
}
