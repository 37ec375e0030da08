package messages

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

const TopicJobFinished = "combined.job.finished"

// JobFinished публикуется воркером, когда задача стала терминальной.
type JobFinished struct {
	JobID      string    `json:"jobId"`
	Queue      string    `json:"queue"`
	TenantID   string    `json:"tenantId"`
	State      string    `json:"state"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (JobFinished) EventType() string { return "job.finished" }

func DecodeJobFinished(b []byte) (JobFinished, error) {
	var m JobFinished
	if err := json.Unmarshal(b, &m); err != nil {
		return JobFinished{}, errors.Wrap(err, "decode job finished")
	}
	if m.JobID == "" || m.TenantID == "" || m.Queue == "" {
		return JobFinished{}, errors.New("job finished: empty jobId, queue or tenantId")
	}
	return m, nil
}
