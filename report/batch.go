package report

import (
	"time"

	"github.com/google/uuid"
	"github.com/lagren/healthguard/api"
	"github.com/lagren/healthguard/check"
)

// LocalSource identifies batches produced by this process.
const LocalSource = "self"

// Batch is the set of results produced in one scheduling cycle.
type Batch struct {
	ID        uuid.UUID
	Timestamp time.Time
	Results   []check.Result
	Source    string
}

func NewBatch(results []check.Result) *Batch {
	return &Batch{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Results:   results,
		Source:    LocalSource,
	}
}

// Payload builds the wire body sent to an ingestion service on behalf of appID.
func (b *Batch) Payload(appID string) api.JobPayload {
	checks := make([]api.CheckPayload, 0, len(b.Results))
	for _, r := range b.Results {
		checks = append(checks, api.CheckPayload{
			Name:    r.Name,
			Status:  int(r.Status),
			Message: r.Message,
		})
	}

	return api.JobPayload{
		UUID:      b.ID.String(),
		Timestamp: b.Timestamp.UTC().Format(time.RFC3339Nano),
		SyncAppID: appID,
		Checks:    checks,
	}
}
