package model

import (
	"errors"
	"time"
)

type JobStatus string

const (
	JobStatusIdle    JobStatus = "idle"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// IsTerminal returns true for statuses that represent a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusIdle, JobStatusRunning, JobStatusSuccess, JobStatusError:
		return true
	}
	return false
}

type JobKind string

const (
	JobKindGenerate  JobKind = "generate"
	JobKindTransform JobKind = "transform"
)

// Direction is the target facing for a transform job ("rotate the sprite
// to face X").
type Direction string

const (
	DirectionNorth Direction = "north"
	DirectionEast  Direction = "east"
	DirectionSouth Direction = "south"
	DirectionWest  Direction = "west"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionNorth, DirectionEast, DirectionSouth, DirectionWest:
		return true
	}
	return false
}

// Asset is an opaque generated payload. The scheduler never interprets the
// bytes; it only carries them between the generation backend and the store.
type Asset struct {
	Data   []byte `json:"data,omitempty"`
	MIME   string `json:"mime,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	cp := *a
	if a.Data != nil {
		cp.Data = append([]byte(nil), a.Data...)
	}
	return &cp
}

// JobParams describes one generation request. Source and Direction are only
// meaningful when Kind is JobKindTransform.
type JobParams struct {
	Kind      JobKind   `json:"kind"`
	Prompt    string    `json:"prompt,omitempty"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Seed      string    `json:"seed,omitempty"`
	Source    *Asset    `json:"-"`
	Direction Direction `json:"direction,omitempty"`
}

// Validate rejects malformed parameters before a job is created.
func (p *JobParams) Validate() error {
	switch p.Kind {
	case JobKindGenerate:
		if p.Prompt == "" {
			return errors.New("prompt must not be empty")
		}
	case JobKindTransform:
		if p.Source == nil || len(p.Source.Data) == 0 {
			return errors.New("transform requires a source asset")
		}
		if !p.Direction.Valid() {
			return errors.New("direction must be one of: north, east, south, west")
		}
	default:
		return errors.New("kind must be 'generate' or 'transform'")
	}
	if p.Width <= 0 || p.Height <= 0 {
		return errors.New("width and height must be positive")
	}
	return nil
}

// Failure records why a job ended in JobStatusError.
type Failure struct {
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

// Job is one unit of work tracked through its status lifecycle.
// Exactly one of Result/Failure is set once the status is terminal; neither
// is set while the job is idle or running.
type Job struct {
	ID              string     `json:"id"`
	BatchID         string     `json:"batch_id,omitempty"`
	Params          JobParams  `json:"params"`
	Status          JobStatus  `json:"status"`
	Result          *Asset     `json:"result,omitempty"`
	Failure         *Failure   `json:"failure,omitempty"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
}

// Clone returns a deep copy so store snapshots cannot be mutated by callers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	cp := *j
	cp.Result = j.Result.Clone()
	cp.Params.Source = j.Params.Source.Clone()
	if j.Failure != nil {
		f := *j.Failure
		cp.Failure = &f
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.EndedAt != nil {
		t := *j.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}

// Stats are derived counts, recomputed by the store on every mutation.
type Stats struct {
	Total   int `json:"total"`
	Idle    int `json:"idle"`
	Running int `json:"running"`
	Success int `json:"success"`
	Error   int `json:"error"`
}

// SchedulerMetrics is the on-demand metrics view of the job collection.
// Duration figures are accumulated over successfully completed jobs;
// AverageDurationSeconds is zero when none have completed.
type SchedulerMetrics struct {
	Total                  int     `json:"total"`
	Running                int     `json:"running"`
	Completed              int     `json:"completed"`
	Failed                 int     `json:"failed"`
	TotalDurationSeconds   float64 `json:"total_duration_seconds"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}
