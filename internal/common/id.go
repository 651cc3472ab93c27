package common

import (
	"github.com/google/uuid"
)

// NewTaskID generates a unique task ID with the "task_" prefix
func NewTaskID() string {
	return "task_" + uuid.New().String()
}

// NewRunID generates a unique pipeline run ID with the "run_" prefix
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewSubscriberID generates a unique broadcast subscriber ID with the "sub_" prefix
func NewSubscriberID() string {
	return "sub_" + uuid.New().String()
}

// NewMappingID generates a unique irregular-name mapping ID with the "map_" prefix
func NewMappingID() string {
	return "map_" + uuid.New().String()
}
