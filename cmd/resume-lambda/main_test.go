package main

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/appointment-notify/pkg/logging"
)

type stubProcessor struct {
	fail map[string]bool
	seen []string
}

func (s *stubProcessor) Process(_ context.Context, body string) error {
	s.seen = append(s.seen, body)
	if s.fail[body] {
		return errors.New("requeue failed")
	}
	return nil
}

func TestHandleReportsOnlyFailedRecords(t *testing.T) {
	p := &stubProcessor{fail: map[string]bool{"b": true}}
	evt := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m1", Body: "a"},
		{MessageId: "m2", Body: "b"},
		{MessageId: "m3", Body: "c"},
	}}

	resp := handle(context.Background(), p, logging.Discard(), evt)

	if len(p.seen) != 3 {
		t.Fatalf("expected every record processed, got %v", p.seen)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m2" {
		t.Fatalf("unexpected failures %#v", resp.BatchItemFailures)
	}
}

func TestHandleEmptyBatch(t *testing.T) {
	resp := handle(context.Background(), &stubProcessor{}, logging.Discard(), events.SQSEvent{})
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("expected no failures, got %#v", resp.BatchItemFailures)
	}
}
