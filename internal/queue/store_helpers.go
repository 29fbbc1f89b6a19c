package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

const jobColumns = "id, app_name, platform, device_id, credential, use_get, steps_json, next_due_at, delay_min, delay_max, owner, status, revision, steps_done, last_step, last_result_code, last_result_text, created_at, updated_at"

// timestampLayout is fixed width so stored timestamps compare lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             int64
		appName        string
		platform       sql.NullString
		deviceID       sql.NullString
		credential     sql.NullString
		useGet         int64
		stepsJSON      string
		nextDue        float64
		delayMin       float64
		delayMax       float64
		owner          sql.NullString
		statusStr      string
		revision       int64
		stepsDone      int64
		lastStep       sql.NullString
		lastResultCode int64
		lastResultText sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&appName,
		&platform,
		&deviceID,
		&credential,
		&useGet,
		&stepsJSON,
		&nextDue,
		&delayMin,
		&delayMax,
		&owner,
		&statusStr,
		&revision,
		&stepsDone,
		&lastStep,
		&lastResultCode,
		&lastResultText,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	var steps Steps
	if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
		return nil, fmt.Errorf("decode steps for job %d: %w", id, err)
	}

	job := &Job{
		ID: id,
		Target: Target{
			AppName:    appName,
			Platform:   platform.String,
			DeviceID:   deviceID.String,
			Credential: credential.String,
			UseGet:     useGet != 0,
		},
		Steps:          steps,
		NextDueAt:      fromUnixSeconds(nextDue),
		DelayMin:       delayMin,
		DelayMax:       delayMax,
		Owner:          owner.String,
		Status:         Status(statusStr),
		Revision:       revision,
		StepsDone:      int(stepsDone),
		LastStep:       lastStep.String,
		LastResultCode: int(lastResultCode),
		LastResultText: lastResultText.String,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func encodeSteps(steps Steps) (string, error) {
	if len(steps) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("encode steps: %w", err)
	}
	return string(data), nil
}

// toUnixSeconds stores due times as fractional epoch seconds. The zero time maps to 0.
func toUnixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(v float64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*float64(time.Second)))).UTC()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
