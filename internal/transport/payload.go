package transport

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// AnnouncePayload is the body of POST /device_connected.
type AnnouncePayload struct {
	MACAddress string `json:"mac_address"`
}

// RunPayload is the body returned by POST /runs.
type RunPayload struct {
	ID string `json:"id"`
}

// DatapointsPayload is the body of POST /run/{id}/datapoints.
// Data is the collector's list format: every timestamp preceded by a comma.
type DatapointsPayload struct {
	Data string `json:"data"`
}

// FormatDatapoints creates the JSON body for a batch.
func FormatDatapoints(batch logic.Batch) ([]byte, error) {
	var sb strings.Builder
	for _, ts := range batch {
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatUint(uint64(ts), 10))
	}
	return json.Marshal(DatapointsPayload{Data: sb.String()})
}

// ParseDatapoints is the inverse of FormatDatapoints.
func ParseDatapoints(body []byte) (logic.Batch, error) {
	var p DatapointsPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode datapoints: %w", err)
	}
	var batch logic.Batch
	for _, field := range strings.Split(p.Data, ",") {
		if field == "" {
			continue
		}
		v, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("decode datapoint %q: %w", field, err)
		}
		batch = append(batch, logic.Timestamp(v))
	}
	return batch, nil
}

// ParseRunID extracts and validates the run id from a /runs response.
func ParseRunID(body []byte) (string, error) {
	var p RunPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRunID, err)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidRunID, p.ID, err)
	}
	return id.String(), nil
}
