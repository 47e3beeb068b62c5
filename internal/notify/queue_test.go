package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(2)

	evt := AttendanceEvent{
		StudentID:   7,
		StudentName: "김민준",
		LessonID:    10,
		Status:      "present",
		CheckedAt:   time.Date(2026, 1, 5, 18, 5, 0, 0, time.UTC),
	}
	msg, err := NewAttendanceMessage(evt)
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	if err := q.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}

	got := <-messages
	if got.Type != TypeAttendanceRecorded {
		t.Fatalf("type = %q", got.Type)
	}
	var decoded AttendanceEvent
	if err := json.Unmarshal(got.Body, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != evt {
		t.Errorf("event = %+v, want %+v", decoded, evt)
	}
}

func TestInMemoryPublishHonorsContext(t *testing.T) {
	q := NewInMemory(1)
	msg := Message{Type: "x"}
	if err := q.Publish(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Publish(ctx, msg); err == nil {
		t.Error("publish on full queue with cancelled context succeeded")
	}
}
