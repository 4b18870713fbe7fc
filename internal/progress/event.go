package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
	StageTierStart    Stage = "TIER_START"
	StageTierDone     Stage = "TIER_DONE"
	StageEndpointDone Stage = "ENDPOINT_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for endpoint completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of a pipeline run.
type Event struct {
	// RunID identifies the invocation.
	RunID uuid.UUID
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Tier names the acquisition tier (api, cookie-refresh, browser, snapshot).
	Tier string
	// Endpoint is the endpoint label for ENDPOINT_DONE events.
	Endpoint string
	// Result is the tier or endpoint outcome (success, blocked, empty, ...).
	Result string
	// StatusClass groups the HTTP response code when one was received.
	StatusClass StatusClass
	// Count carries the number of listings produced.
	Count int
	Dur   time.Duration
	// Note lets emitters attach low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageTierStart, StageTierDone:
		if e.Tier == "" {
			return fmt.Errorf("%s requires tier", e.Stage)
		}
	case StageEndpointDone:
		if e.Endpoint == "" {
			return errors.New("endpoint done requires endpoint")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Count < 0 {
		return errors.New("count must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for endpoint events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
