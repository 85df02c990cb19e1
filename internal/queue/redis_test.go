package queue

import (
	"testing"

	"github.com/google/uuid"
)

func TestDecodeTask(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"job id", id.String(), false},
		{"empty", "", true},
		{"garbage", "not-a-uuid", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, err := decodeTask(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeTask(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if task.JobID != id || task.Receipt != tt.payload {
				t.Errorf("decodeTask = %+v, want job %s receipt %q", task, id, tt.payload)
			}
		})
	}
}

func TestNew(t *testing.T) {
	q := New(nil, "catalog_import:queue", 0)
	if q.processing != "catalog_import:queue:processing" {
		t.Errorf("processing key = %q", q.processing)
	}
	if q.pollWait != DefaultPollWait {
		t.Errorf("pollWait = %v, want %v", q.pollWait, DefaultPollWait)
	}
}
