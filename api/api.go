// Package api holds the JSON contracts exchanged between a reporting monitor
// and the ingestion service.
package api

const (
	JobsPath = "/v1/healthcheckjobs/"
	PingPath = "/_ping/"

	DateLayout = "2006-01-02"
)

// CheckPayload is a single check outcome on the wire.
type CheckPayload struct {
	Name    string `json:"name"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// JobPayload is the body of POST /v1/healthcheckjobs/.
type JobPayload struct {
	UUID      string         `json:"uuid"`
	Timestamp string         `json:"timestamp"`
	SyncAppID string         `json:"sync_app_id"`
	Checks    []CheckPayload `json:"checks"`
}

type JobResponse struct {
	UUID      string `json:"uuid"`
	Timestamp string `json:"timestamp"`
}

type CountRow struct {
	Name   string `json:"name"`
	Status int    `json:"status"`
	Count  int64  `json:"count"`
}

type CountResponse struct {
	Data []CountRow `json:"data"`
}

type RunOutcome struct {
	Name      string `json:"name"`
	Status    int    `json:"status"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

type Run struct {
	UUID      string       `json:"uuid"`
	Timestamp string       `json:"timestamp"`
	Source    string       `json:"source"`
	Client    string       `json:"client"`
	Checks    []RunOutcome `json:"checks"`
	CreatedAt string       `json:"created_at"`
}

type RunsResponse struct {
	Data []Run `json:"data"`
}

// FieldErrors maps a request field to its validation messages.
type FieldErrors map[string][]string

type ErrorResponse struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

const InvalidDateFormat = "Invalid date format. Use YYYY-MM-DD."
