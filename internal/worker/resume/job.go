package resumeworker

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/appointment-notify/internal/events"
)

// Job is one pending resume notification. Attempt counts completed deliveries
// of the job that ended in a transient failure.
type Job struct {
	ID          string         `json:"id"`
	TenantKey   string         `json:"tenant_key,omitempty"`
	CallID      string         `json:"call_id,omitempty"`
	ResumeKey   string         `json:"resume_key"`
	Payload     map[string]any `json:"payload"`
	Attempt     int            `json:"attempt"`
	RequestedAt time.Time      `json:"requested_at"`
}

// NewJob converts a resume request event into a queued job.
func NewJob(evt events.FlowResumeRequestedV1) Job {
	requested := evt.RequestedAt
	if requested.IsZero() {
		requested = time.Now().UTC()
	}
	return Job{
		ID:          uuid.NewString(),
		TenantKey:   evt.TenantKey,
		CallID:      evt.CallID,
		ResumeKey:   evt.ResumeKey,
		Payload:     evt.Payload,
		RequestedAt: requested,
	}
}

func encodeJob(job Job) (string, error) {
	if strings.TrimSpace(job.ResumeKey) == "" {
		return "", errors.New("resume: resume key required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("resume: encode job: %w", err)
	}
	return string(body), nil
}

func decodeJob(body string) (Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(body), &job); err != nil {
		return Job{}, fmt.Errorf("resume: decode job: %w", err)
	}
	if strings.TrimSpace(job.ResumeKey) == "" {
		return Job{}, errors.New("resume: job missing resume key")
	}
	return job, nil
}
