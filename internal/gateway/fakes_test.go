package gateway

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"swimnotify/internal/models"
	"swimnotify/pkg/wablas"
	"swimnotify/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testOptions() Options {
	return Options{
		CountryCode:    "62",
		SendDelay:      time.Millisecond,
		ReconnectDelay: 10 * time.Millisecond,
	}
}

// memoryLog is an in-memory MessageLog
type memoryLog struct {
	mu        sync.Mutex
	entries   []*models.MessageLog
	createErr error
	updateErr error
}

func (m *memoryLog) Create(ctx context.Context, entry *models.MessageLog) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", m.createErr
	}
	copied := *entry
	copied.ID = fmt.Sprintf("log-%d", len(m.entries)+1)
	m.entries = append(m.entries, &copied)
	return copied.ID, nil
}

func (m *memoryLog) Update(ctx context.Context, id string, update models.MessageLogUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = update.Status
			if update.TransportID != nil {
				e.TransportID = *update.TransportID
			}
			if update.Error != nil {
				text := *update.Error
				e.Error = &text
			}
			return nil
		}
	}
	return fmt.Errorf("log entry %s not found", id)
}

func (m *memoryLog) UpdateStatusByTransportID(ctx context.Context, transportID string, status models.DeliveryStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.TransportID == transportID {
			if status.Rank() <= e.Status.Rank() {
				return false, nil
			}
			e.Status = status
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryLog) FindByTransportID(ctx context.Context, transportID string) (*models.MessageLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.TransportID == transportID {
			copied := *e
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memoryLog) Stats(ctx context.Context) (*models.MessageStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &models.MessageStats{
		Total:      len(m.entries),
		ByStatus:   make(map[models.DeliveryStatus]int),
		ByCategory: make(map[models.Category]int),
	}
	for _, e := range m.entries {
		stats.ByStatus[e.Status]++
		stats.ByCategory[e.Category]++
	}
	return stats, nil
}

func (m *memoryLog) all() []models.MessageLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.MessageLog, len(m.entries))
	for i, e := range m.entries {
		out[i] = *e
	}
	return out
}

// fakeSessionTransport records sends and lets tests push events
type fakeSessionTransport struct {
	mu         sync.Mutex
	events     chan types.SessionEvent
	startErr   error
	sendErr    error
	starts     int
	logouts    int
	sent       []string
	sentBodies []string

	// gate, when set, holds SendText until a result is pushed into it
	gate    chan error
	entered chan struct{}
}

func newFakeSessionTransport() *fakeSessionTransport {
	return &fakeSessionTransport{events: make(chan types.SessionEvent, 16)}
}

func (f *fakeSessionTransport) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeSessionTransport) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *fakeSessionTransport) SendText(ctx context.Context, phone, text string) (string, error) {
	f.mu.Lock()
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		if err := <-gate; err != nil {
			return "", err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, phone)
	f.sentBodies = append(f.sentBodies, text)
	return fmt.Sprintf("wamid-%d", len(f.sent)), nil
}

func (f *fakeSessionTransport) Events() <-chan types.SessionEvent {
	return f.events
}

func (f *fakeSessionTransport) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeSessionTransport) bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sentBodies...)
}

// hold makes the next sends block until release is called
func (f *fakeSessionTransport) hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan error)
	f.entered = make(chan struct{}, 1)
}

func (f *fakeSessionTransport) release(err error) {
	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()
	gate <- err
}

func (f *fakeSessionTransport) setStartErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr = err
}

// fakeHostedClient answers like the hosted API
type fakeHostedClient struct {
	mu         sync.Mutex
	configured bool
	failFor    map[string]error
	sent       []string
	documents  []wablas.Document
	registered map[string]bool
}

func newFakeHostedClient() *fakeHostedClient {
	return &fakeHostedClient{configured: true, failFor: make(map[string]error), registered: make(map[string]bool)}
}

func (f *fakeHostedClient) Configured() bool {
	return f.configured
}

func (f *fakeHostedClient) SendMessage(ctx context.Context, phone, message string) (*wablas.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[phone]; ok {
		return nil, err
	}
	f.sent = append(f.sent, phone)
	return &wablas.SendResult{MessageID: fmt.Sprintf("wablas-%d", len(f.sent)), Status: "pending"}, nil
}

func (f *fakeHostedClient) SendDocument(ctx context.Context, phone string, doc wablas.Document) (*wablas.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, doc)
	return &wablas.SendResult{MessageID: "doc-1"}, nil
}

func (f *fakeHostedClient) CheckPhone(ctx context.Context, phone string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered[phone], nil
}

// recordingSubscriber keeps every snapshot it receives
type recordingSubscriber struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (r *recordingSubscriber) Write(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return r.err
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recordingSubscriber) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1]
}
