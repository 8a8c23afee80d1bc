package http

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// PartitionStats is one partition's counters in a stats response.
type PartitionStats struct {
	Calls       uint64  `json:"calls"`
	USecTotal   int64   `json:"usec_total"`
	USecPerCall float64 `json:"usec_per_call"`
}

// Response represents the standard API response format. Count-like fields
// are pointers so that a zero is still written.
type Response struct {
	Status  Status `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Routing string `json:"routing,omitempty"`

	Count   *int `json:"count,omitempty"`
	Deleted *int `json:"deleted,omitempty"`
	Applied *int `json:"applied,omitempty"`
	Flushes *int `json:"flushes,omitempty"`

	Partitions  map[string]PartitionStats   `json:"partitions,omitempty"`
	LatencyUSec map[string]int64            `json:"latency_usec,omitempty"`
	Records     map[string]map[string]int64 `json:"records,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewCountResponse(pattern, mode, routing string, count int) Response {
	return Response{Status: StatusSuccess, Pattern: pattern, Mode: mode, Routing: routing, Count: &count}
}

func NewDeletedResponse(pattern string, deleted int) Response {
	return Response{Status: StatusSuccess, Pattern: pattern, Deleted: &deleted}
}

func NewAppliedResponse(applied, flushes int) Response {
	return Response{Status: StatusSuccess, Applied: &applied, Flushes: &flushes}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

// NewPartialErrorResponse is an error that still reports how many
// operations went through before it.
func NewPartialErrorResponse(err string, applied int) Response {
	return Response{Status: StatusError, Error: err, Applied: &applied}
}
