package store

import "errors"

var (
	// ErrEmptyTaskID indicates a history row was requested without a task id
	ErrEmptyTaskID = errors.New("empty_task_id")

	// ErrEmptyURL indicates a history row was requested without a URL
	ErrEmptyURL = errors.New("empty_url")
)
