package task

import (
	"encoding/json"
	"testing"
	"time"
)

func sampleState() *SchedulerState {
	attempt := time.Date(2021, 1, 1, 1, 0, 0, 0, time.UTC)
	success := time.Date(2021, 1, 1, 1, 0, 2, 0, time.UTC)
	return &SchedulerState{
		Version:        CurrentVersion,
		StartTime:      time.Date(2021, 1, 1, 0, 5, 0, 0, time.UTC),
		PollIntervalMs: 1000,
		Tasks: map[string]*TaskRecord{
			"T": {
				Name:            "T",
				CronExpression:  "0 * * * *",
				RetryDelayMs:    300000,
				LastAttemptTime: &attempt,
				LastSuccessTime: &success,
			},
		},
	}
}

func TestSchedulerStateJSONRoundTrip(t *testing.T) {
	in := sampleState()

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out SchedulerState
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if out.Version != in.Version || !out.StartTime.Equal(in.StartTime) || out.PollIntervalMs != in.PollIntervalMs {
		t.Errorf("scheduler fields did not round-trip: got %+v", out)
	}
	rec, ok := out.Tasks["T"]
	if !ok {
		t.Fatal("task T missing after round-trip")
	}
	if rec.CronExpression != "0 * * * *" || rec.RetryDelayMs != 300000 {
		t.Errorf("task fields did not round-trip: %+v", rec)
	}
	if rec.LastAttemptTime == nil || !rec.LastAttemptTime.Equal(*in.Tasks["T"].LastAttemptTime) {
		t.Errorf("LastAttemptTime did not round-trip: %v", rec.LastAttemptTime)
	}
	if rec.LastFailureTime != nil {
		t.Errorf("LastFailureTime = %v, want nil", rec.LastFailureTime)
	}
}

func TestSchedulerStateIgnoresUnknownFields(t *testing.T) {
	raw := `{
		"version": 1,
		"startTime": "2021-01-01T00:05:00Z",
		"pollIntervalMs": 1000,
		"futureField": {"nested": true},
		"tasks": {
			"T": {"name": "T", "cronExpression": "0 * * * *", "retryDelayMs": 300000,
			      "lastAttemptTime": null, "lastSuccessTime": null, "lastFailureTime": null,
			      "running": false, "anotherUnknown": 42}
		}
	}`

	var out SchedulerState
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("Unmarshal rejected unknown fields: %v", err)
	}
	if out.Tasks["T"] == nil || out.Tasks["T"].CronExpression != "0 * * * *" {
		t.Errorf("known fields not decoded alongside unknown ones: %+v", out.Tasks["T"])
	}
}

func TestWriterEmitsAllKnownFields(t *testing.T) {
	data, err := json.Marshal(&TaskRecord{Name: "T", CronExpression: "0 * * * *"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, field := range []string{"name", "cronExpression", "retryDelayMs",
		"lastAttemptTime", "lastSuccessTime", "lastFailureTime", "running"} {
		if _, ok := m[field]; !ok {
			t.Errorf("serialized record missing field %q (absent values must be explicit nulls)", field)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	in := sampleState()
	clone := in.Clone()

	newTime := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	clone.Tasks["T"].LastAttemptTime = &newTime
	clone.Tasks["T"].Running = true
	clone.Tasks["X"] = &TaskRecord{Name: "X"}

	if in.Tasks["T"].LastAttemptTime.Equal(newTime) {
		t.Error("mutating the clone's timestamp leaked into the original")
	}
	if in.Tasks["T"].Running {
		t.Error("mutating the clone's running flag leaked into the original")
	}
	if _, ok := in.Tasks["X"]; ok {
		t.Error("adding a task to the clone leaked into the original")
	}
}
