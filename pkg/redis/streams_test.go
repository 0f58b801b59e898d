package redis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestDecodeEntryValidJob(t *testing.T) {
	job := TriggerJob{
		ID:          "job-1",
		TenantID:    "tenant-1",
		TriggerType: models.TriggerLeadCreated,
		Data:        models.TriggerData{RecordID: "lead-1"},
	}
	payload, err := json.Marshal(job)
	require.NoError(t, err)

	msg := decodeEntry("clover:triggers", "1-0", map[string]interface{}{"data": string(payload)})

	require.NoError(t, msg.DecodeErr)
	assert.Equal(t, "1-0", msg.ID)
	assert.Equal(t, "clover:triggers", msg.Stream)
	assert.Equal(t, "job-1", msg.Job.ID)
	assert.Equal(t, "tenant-1", msg.Job.TenantID)
	assert.Equal(t, models.TriggerLeadCreated, msg.Job.TriggerType)
}

func TestDecodeEntryInvalidJSONKeepsRawPayload(t *testing.T) {
	// Entries that are not JSON must still come back with their ID so the
	// consumer can ack and dead-letter them instead of re-claiming forever.
	msg := decodeEntry("clover:triggers", "2-0", map[string]interface{}{"data": "not json"})

	require.Error(t, msg.DecodeErr)
	assert.Equal(t, "2-0", msg.ID)
	assert.Equal(t, "not json", msg.Raw)
	assert.Empty(t, msg.Job.ID)
}

func TestDecodeEntryMissingDataField(t *testing.T) {
	msg := decodeEntry("clover:triggers", "3-0", map[string]interface{}{"other": "x"})

	require.Error(t, msg.DecodeErr)
	assert.Equal(t, "3-0", msg.ID)
	assert.Empty(t, msg.Raw)
}
