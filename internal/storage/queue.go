package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"conference-central/internal/domain"
)

// TaskMessage is a task received from a queue together with what is needed
// to delete it once handled.
type TaskMessage struct {
	ID           string
	PopReceipt   string
	DequeueCount int64
	Task         domain.Task
	// DecodeErr is set when the message body is not a task.
	DecodeErr error
}

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
}

// AzureQueue carries tasks over an Azure storage queue as JSON messages.
type AzureQueue struct {
	queue      queueClient
	visibility int32
}

// NewAzureQueue connects to the named queue. visibility is how long a
// received message stays hidden from other consumers.
func NewAzureQueue(connStr, name string, visibility time.Duration) (*AzureQueue, error) {
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return newAzureQueue(q, visibility), nil
}

func newAzureQueue(q queueClient, visibility time.Duration) *AzureQueue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &AzureQueue{queue: q, visibility: int32(visibility / time.Second)}
}

func (q *AzureQueue) EnqueueTask(ctx context.Context, task domain.Task) error {
	data, err := sonic.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.Name, err)
	}
	if _, err := q.queue.EnqueueMessage(ctx, string(data), nil); err != nil {
		return fmt.Errorf("enqueue task %s: %w", task.Name, err)
	}
	return nil
}

// Receive returns the next message, or nil when the queue is empty.
func (q *AzureQueue) Receive(ctx context.Context) (*TaskMessage, error) {
	vis := q.visibility
	resp, err := q.queue.DequeueMessage(ctx, &azqueue.DequeueMessageOptions{VisibilityTimeout: &vis})
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	m := resp.Messages[0]
	msg := &TaskMessage{}
	if m.MessageID != nil {
		msg.ID = *m.MessageID
	}
	if m.PopReceipt != nil {
		msg.PopReceipt = *m.PopReceipt
	}
	if m.DequeueCount != nil {
		msg.DequeueCount = *m.DequeueCount
	}
	if m.MessageText == nil {
		msg.DecodeErr = fmt.Errorf("message %s has no body", msg.ID)
		return msg, nil
	}
	msg.Task, msg.DecodeErr = decodeTask([]byte(*m.MessageText))
	return msg, nil
}

func (q *AzureQueue) Delete(ctx context.Context, msg *TaskMessage) error {
	_, err := q.queue.DeleteMessage(ctx, msg.ID, msg.PopReceipt, nil)
	return err
}

func decodeTask(data []byte) (domain.Task, error) {
	var task domain.Task
	if err := sonic.Unmarshal(data, &task); err != nil {
		return domain.Task{}, fmt.Errorf("decode task: %w", err)
	}
	if task.Name == "" {
		return domain.Task{}, fmt.Errorf("decode task: missing name")
	}
	return task, nil
}

// MemoryQueue is an in-process task queue. Tasks are encoded on enqueue so
// the worker sees the same messages an Azure queue would deliver.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []memoryMessage
}

type memoryMessage struct {
	id   string
	body []byte
}

func NewMemoryQueue() *MemoryQueue { return &MemoryQueue{} }

func (q *MemoryQueue) EnqueueTask(ctx context.Context, task domain.Task) error {
	data, err := sonic.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.Name, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, memoryMessage{id: uuid.NewString(), body: data})
	return nil
}

// Receive pops the oldest message, or returns nil when the queue is empty.
func (q *MemoryQueue) Receive(ctx context.Context) (*TaskMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, nil
	}
	m := q.messages[0]
	q.messages = q.messages[1:]
	msg := &TaskMessage{ID: m.id, DequeueCount: 1}
	msg.Task, msg.DecodeErr = decodeTask(m.body)
	return msg, nil
}

func (q *MemoryQueue) Delete(ctx context.Context, msg *TaskMessage) error { return nil }

// Len reports how many messages are waiting.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
