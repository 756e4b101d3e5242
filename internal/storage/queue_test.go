package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"conference-central/internal/domain"
)

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
	deleted  []string
	lastVis  *int32
}

func (f *fakeQueue) EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func (f *fakeQueue) DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o != nil {
		f.lastVis = o.VisibilityTimeout
	}
	if len(f.messages) == 0 {
		return azqueue.DequeueMessagesResponse{}, nil
	}
	text := f.messages[0]
	f.messages = f.messages[1:]
	id, receipt, count := "m1", "r1", int64(2)
	return azqueue.DequeueMessagesResponse{Messages: []*azqueue.DequeuedMessage{{
		MessageID:    &id,
		PopReceipt:   &receipt,
		DequeueCount: &count,
		MessageText:  &text,
	}}}, nil
}

func (f *fakeQueue) DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID+"/"+popReceipt)
	return azqueue.DeleteMessageResponse{}, nil
}

func TestAzureQueueRoundTrip(t *testing.T) {
	fq := &fakeQueue{}
	q := newAzureQueue(fq, 0)
	ctx := context.Background()

	task := domain.Task{Name: domain.TaskFeaturedSpeaker, Params: map[string]string{"speaker": "Bob"}}
	if err := q.EnqueueTask(ctx, task); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	msg, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if msg.DecodeErr != nil || msg.Task.Name != domain.TaskFeaturedSpeaker || msg.Task.Params["speaker"] != "Bob" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if msg.DequeueCount != 2 {
		t.Fatalf("expected dequeue count 2, got %d", msg.DequeueCount)
	}
	if fq.lastVis == nil || *fq.lastVis != 30 {
		t.Fatalf("expected default visibility of 30s, got %v", fq.lastVis)
	}
	if err := q.Delete(ctx, msg); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fq.deleted) != 1 || fq.deleted[0] != "m1/r1" {
		t.Fatalf("unexpected deletes %v", fq.deleted)
	}

	msg, err = q.Receive(ctx)
	if err != nil || msg != nil {
		t.Fatalf("expected empty queue, got %+v %v", msg, err)
	}
}

func TestAzureQueueMalformedMessage(t *testing.T) {
	fq := &fakeQueue{messages: []string{"not json", `{"params":{}}`}}
	q := newAzureQueue(fq, 0)
	for range 2 {
		msg, err := q.Receive(context.Background())
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if msg.DecodeErr == nil {
			t.Fatalf("expected decode error for %+v", msg)
		}
	}
}

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()
	for _, name := range []string{domain.TaskSendConfirmationEmail, domain.TaskSetAnnouncement} {
		if err := q.EnqueueTask(ctx, domain.Task{Name: name}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", q.Len())
	}
	first, _ := q.Receive(ctx)
	second, _ := q.Receive(ctx)
	if first.Task.Name != domain.TaskSendConfirmationEmail || second.Task.Name != domain.TaskSetAnnouncement {
		t.Fatalf("unexpected order %s, %s", first.Task.Name, second.Task.Name)
	}
	if msg, _ := q.Receive(ctx); msg != nil {
		t.Fatalf("expected empty queue")
	}
}
