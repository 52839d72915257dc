package taskqueue

import (
	"encoding/json"
	"strings"
	"time"
)

// Type identifies the cross-stage work a task carries.
type Type string

const (
	TypeProduce Type = "produce"
	TypePublish Type = "publish"
	TypeMeasure Type = "measure"
	TypeCurate  Type = "curate"
)

// Status represents the lifecycle of a queued task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var taskTypes = map[Type]struct{}{
	TypeProduce: {},
	TypePublish: {},
	TypeMeasure: {},
	TypeCurate:  {},
}

// ParseType converts a string into a known task type.
func ParseType(value string) (Type, bool) {
	normalized := Type(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := taskTypes[normalized]
	return normalized, ok
}

// Task is a unit of cross-stage work with an opaque JSON payload.
type Task struct {
	ID            int64
	Type          Type
	Payload       json.RawMessage
	Status        Status
	Priority      int
	ErrorMessage  string
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	LastErrorAt   *time.Time
	LastHeartbeat *time.Time
}

// IsTerminal reports whether a task status allows no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
