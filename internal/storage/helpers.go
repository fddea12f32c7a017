package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roman-kulish/launcher-link/internal/telemetry"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError ignores sql.ErrTxDone so it can be deferred before
// Commit.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && cErr != sql.ErrTxDone && *err == nil {
		*err = cErr
	}
}

// encodeFields stores readings as a JSON array with null for gaps.
func encodeFields(fields []telemetry.Reading) (string, error) {
	values := make([]*float64, len(fields))
	for i := range fields {
		if fields[i].IsValid {
			values[i] = &fields[i].Value
		}
	}

	p, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshaling fields: %w", err)
	}
	return string(p), nil
}

func decodeFields(s string) ([]telemetry.Reading, error) {
	var values []*float64
	if err := json.Unmarshal([]byte(s), &values); err != nil {
		return nil, fmt.Errorf("unmarshaling fields: %w", err)
	}

	fields := make([]telemetry.Reading, len(values))
	for i, v := range values {
		if v != nil {
			fields[i] = telemetry.Reading{Value: *v, IsValid: true}
		}
	}
	return fields, nil
}

func toRow(data rowData) (telemetry.Row, error) {
	fields, err := decodeFields(data.Fields)
	if err != nil {
		return telemetry.Row{}, err
	}
	return telemetry.Row{
		Ticks:      uint32(data.Ticks.Int64),
		TicksValid: data.Ticks.Valid,
		Seconds:    data.Seconds,
		Fields:     fields,
	}, nil
}

func toCapture(data captureData) (*Capture, error) {
	c := Capture{
		ID:        data.ID,
		StartTime: data.StartTime,
		Port:      data.Port,
		Mode:      telemetry.Mode(data.Mode),
	}
	if data.Labels.Valid {
		if err := json.Unmarshal([]byte(data.Labels.String), &c.Labels); err != nil {
			return nil, fmt.Errorf("unmarshaling labels: %w", err)
		}
	}
	if data.Config.Valid {
		var config telemetry.GraphConfig
		if err := json.Unmarshal([]byte(data.Config.String), &config); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
		c.Config = &config
	}
	return &c, nil
}
