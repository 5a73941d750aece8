package model

// JobListOptions groups parameters for listing jobs.
type JobListOptions struct {
	Queue     *string // Optional filter by queue name
	Tag       *string // Optional filter by tag
	SortBy    string  // One of JobSortFields (default: "name")
	SortOrder string  // "asc" or "desc" (default: "asc")
	Limit     int
	Offset    int
}

// JobSortFields is the explicit allowlist of sortable job columns.
var JobSortFields = []string{"name", "queue_name", "execution_count", "failures_count", "avg_duration", "created_at"}

// JobWithPerformance is a job annotated for the read side.
type JobWithPerformance struct {
	Job
	FailureRate float64           `json:"failure_rate"`
	Performance PerformanceStatus `json:"performance"`
}
