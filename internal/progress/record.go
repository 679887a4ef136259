package progress

// Status is the lifecycle state of one download task.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"

	// StatusNotFound is synthesized by readers for unknown task ids.
	// It is never stored.
	StatusNotFound Status = "not_found"
)

// Terminal reports whether no further mutation is expected for a record in
// this status. A not_found sentinel also terminates observation.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusNotFound
}

// Record is the current status snapshot for exactly one task. All fields are
// scalar so records compare with == and copy by value; readers always receive
// snapshots, never shared state.
type Record struct {
	Status      Status  `json:"status"`
	Percentage  float64 `json:"percentage"`
	Message     string  `json:"message"`
	Filename    string  `json:"filename,omitempty"`
	DownloadURL string  `json:"download_url,omitempty"`
}

// NotFound is the sentinel returned for task ids that were never created or
// were already cleaned up.
func NotFound() Record {
	return Record{
		Status:  StatusNotFound,
		Message: "Tarea no encontrada",
	}
}
