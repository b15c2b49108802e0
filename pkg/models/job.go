package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// DetectionJob tracks one uploaded video through the detection worker
type DetectionJob struct {
	ID              string     `json:"id" db:"id"`
	UserID          int64      `json:"user_id" db:"user_id"`
	Filename        string     `json:"filename" db:"filename"`
	StorageKey      string     `json:"storage_key" db:"storage_key"`
	Status          string     `json:"status" db:"status"`
	FPS             float64    `json:"fps" db:"fps"`
	FramesProcessed int        `json:"frames_processed" db:"frames_processed"`
	ErrorMsg        string     `json:"error_msg,omitempty" db:"error_msg"`
	DetectionID     *int64     `json:"detection_id,omitempty" db:"detection_id"`
	PreviewKey      string     `json:"preview_key,omitempty" db:"preview_key"`
	Metadata        Metadata   `json:"metadata" db:"metadata"`
	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// JobMessage is the queue payload announcing a job to the worker
type JobMessage struct {
	JobID  string `json:"job_id"`
	UserID int64  `json:"user_id"`
}

// Metadata holds probe information about the source video
type Metadata map[string]interface{}

// Value implements driver.Valuer for database storage
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = make(Metadata)
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	case map[string]interface{}:
		*m = v
	}
	return nil
}

// JobStatus constants
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// IsFinished reports whether the job reached a terminal status
func (j *DetectionJob) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
