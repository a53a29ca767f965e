package model

import (
	"encoding/json"
	"time"
)

// JobType distinguishes the two kinds of queued work.
type JobType string

const (
	// JobTypeCoordinator fetches fresh documents and fans out one
	// PostProcessor job per new, not-yet-processed document.
	JobTypeCoordinator JobType = "coordinator"
	// JobTypePostProcessor runs a single document through the pipeline.
	JobTypePostProcessor JobType = "post_processor"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is one durable unit of queued work.
type Job struct {
	ID          string     `json:"id"`
	Type        JobType    `json:"type"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Payload carries the serialized source document for PostProcessor jobs.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Result holds record or spawned-job IDs on completion.
	Result []string `json:"result,omitempty"`
	Error  string   `json:"error,omitempty"`
	// ExpiresAt is the retention deadline set on terminal transitions.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// DocumentPayload decodes the job payload as a Document.
func (j *Job) DocumentPayload() (Document, error) {
	var doc Document
	err := json.Unmarshal(j.Payload, &doc)
	return doc, err
}
