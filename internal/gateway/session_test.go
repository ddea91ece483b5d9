package gateway

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"swimnotify/internal/errors"
	"swimnotify/internal/models"
	"swimnotify/pkg/whatsapp"
	"swimnotify/pkg/whatsapp/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventually = time.Second

func newSessionProvider(t *testing.T) (*SessionProvider, *fakeSessionTransport, *memoryLog) {
	t.Helper()
	transport := newFakeSessionTransport()
	log := &memoryLog{}
	p := NewSessionProvider(transport, log, quietLogger(), testOptions())
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.Initialize(context.Background()))
	return p, transport, log
}

func waitForState(t *testing.T, p *SessionProvider, state State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return p.GetStatus().State == state
	}, eventually, time.Millisecond, "expected state %s", state)
}

func TestSessionProvider_PairingFlow(t *testing.T) {
	p, transport, _ := newSessionProvider(t)
	sub := &recordingSubscriber{}
	p.AddClient(sub)

	assert.Equal(t, StateDisconnected, p.GetStatus().State)
	assert.Equal(t, 1, transport.startCount())

	transport.events <- types.SessionEvent{Type: types.EventQR, QR: "2@pairing"}
	waitForState(t, p, StatePairing)

	status := p.GetStatus()
	require.NotNil(t, status.QRCode)
	assert.Equal(t, "2@pairing", *status.QRCode)
	assert.False(t, p.IsReady())

	connectedAt := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	transport.events <- types.SessionEvent{Type: types.EventOpen, Phone: "6281111111111", At: connectedAt}
	waitForState(t, p, StateConnected)

	status = p.GetStatus()
	assert.Nil(t, status.QRCode)
	require.NotNil(t, status.Phone)
	assert.Equal(t, "6281111111111", *status.Phone)
	require.NotNil(t, status.LastConnected)
	assert.True(t, connectedAt.Equal(*status.LastConnected))
	assert.True(t, p.IsReady())
	assert.GreaterOrEqual(t, sub.count(), 2)
}

func TestSessionProvider_QueueWhileNotReady(t *testing.T) {
	p, transport, log := newSessionProvider(t)

	msgs := []OutboundMessage{
		{To: "081200000001", Body: "first"},
		{To: "081200000002", Body: "second"},
		{To: "081200000003", Body: "third"},
	}
	for i, msg := range msgs {
		res, err := p.SendMessage(context.Background(), msg)
		require.Error(t, err)
		assert.True(t, errors.IsNotReady(err))
		require.NotNil(t, res)
		assert.True(t, res.Queued)
		assert.False(t, res.Success)
		assert.Equal(t, i+1, p.QueueLength())
	}

	assert.Empty(t, log.all())
	assert.Equal(t, 3, p.GetStatus().Stats.TotalPending)
	assert.Equal(t, 3, p.GetStatus().QueueLength)

	transport.events <- types.SessionEvent{Type: types.EventOpen, Phone: "6281111111111"}

	require.Eventually(t, func() bool {
		return len(transport.bodies()) == 3
	}, eventually, time.Millisecond)
	assert.Equal(t, []string{"first", "second", "third"}, transport.bodies())

	require.Eventually(t, func() bool {
		entries := log.all()
		if len(entries) != 3 {
			return false
		}
		for _, entry := range entries {
			if entry.Status != models.DeliveryStatusSent {
				return false
			}
		}
		return true
	}, eventually, time.Millisecond)

	for i, entry := range log.all() {
		assert.Equal(t, msgs[i].Body, entry.Body)
	}
	assert.Equal(t, 3, p.GetStatus().Stats.TotalSent)
	assert.Equal(t, 0, p.QueueLength())
	assert.Equal(t, 0, p.GetStatus().Stats.TotalPending)
}

func TestSessionProvider_DropMidDrainKeepsMessage(t *testing.T) {
	p, transport, log := newSessionProvider(t)

	for _, body := range []string{"first", "second"} {
		_, err := p.SendMessage(context.Background(), OutboundMessage{To: "081200000001", Body: body})
		require.True(t, errors.IsNotReady(err))
	}

	transport.hold()
	transport.events <- types.SessionEvent{Type: types.EventOpen}
	select {
	case <-transport.entered:
	case <-time.After(eventually):
		t.Fatal("queued message was not sent")
	}

	transport.events <- types.SessionEvent{Type: types.EventClose}
	waitForState(t, p, StateDisconnected)
	transport.release(fmt.Errorf("connection reset"))

	require.Eventually(t, func() bool {
		return p.QueueLength() == 2 && !p.draining.Load()
	}, eventually, time.Millisecond)
	assert.Equal(t, 2, p.GetStatus().Stats.TotalPending)
	assert.Equal(t, 2, p.GetStatus().QueueLength)
	require.Len(t, log.all(), 1)
	assert.Equal(t, models.DeliveryStatusFailed, log.all()[0].Status)

	transport.events <- types.SessionEvent{Type: types.EventOpen}
	require.Eventually(t, func() bool {
		return len(transport.bodies()) == 2
	}, eventually, time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, transport.bodies())
	assert.Equal(t, 0, p.QueueLength())
}

func TestSessionProvider_SendWhenConnected(t *testing.T) {
	p, transport, log := newSessionProvider(t)
	transport.events <- types.SessionEvent{Type: types.EventOpen}
	waitForState(t, p, StateConnected)

	res, err := p.SendMessage(context.Background(), OutboundMessage{To: "0821-400-4677", Body: "Jadwal renang"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Queued)
	assert.Equal(t, "6282140044677", res.Recipient)
	assert.Equal(t, ProviderSession, res.Provider)
	assert.Equal(t, "wamid-1", res.TransportID)

	entries := log.all()
	require.Len(t, entries, 1)
	assert.Equal(t, ProviderSession, entries[0].Provider)
	assert.Equal(t, "wamid-1", entries[0].TransportID)
}

func TestSessionProvider_SendRejected(t *testing.T) {
	p, transport, log := newSessionProvider(t)
	transport.events <- types.SessionEvent{Type: types.EventOpen}
	waitForState(t, p, StateConnected)

	transport.sendErr = &whatsapp.APIError{Endpoint: "/api/sendText", StatusCode: http.StatusBadRequest, Message: "chat not found"}
	_, err := p.SendMessage(context.Background(), OutboundMessage{To: "081234567890", Body: "hi"})
	assert.True(t, errors.IsTransportRejected(err))
	assert.Equal(t, "chat not found", errors.GetUserMessage(err))

	transport.sendErr = fmt.Errorf("connection reset")
	_, err = p.SendMessage(context.Background(), OutboundMessage{To: "081234567890", Body: "hi"})
	assert.True(t, errors.IsRetryable(err))

	entries := log.all()
	require.Len(t, entries, 2)
	assert.Equal(t, models.DeliveryStatusFailed, entries[0].Status)
	assert.Equal(t, 2, p.GetStatus().Stats.TotalFailed)
}

func TestSessionProvider_ReconnectAfterClose(t *testing.T) {
	p, transport, _ := newSessionProvider(t)
	transport.events <- types.SessionEvent{Type: types.EventOpen}
	waitForState(t, p, StateConnected)

	transport.events <- types.SessionEvent{Type: types.EventClose, Reason: "FAILED"}
	waitForState(t, p, StateDisconnected)

	require.Eventually(t, func() bool {
		return transport.startCount() >= 2
	}, eventually, time.Millisecond)
}

func TestSessionProvider_ReconnectRetriesAfterFailedStart(t *testing.T) {
	p, transport, _ := newSessionProvider(t)
	transport.setStartErr(fmt.Errorf("waha unavailable"))

	transport.events <- types.SessionEvent{Type: types.EventClose}
	waitForState(t, p, StateDisconnected)

	require.Eventually(t, func() bool {
		return transport.startCount() >= 3
	}, eventually, time.Millisecond)
}

func TestSessionProvider_NoReconnectAfterLogout(t *testing.T) {
	p, transport, _ := newSessionProvider(t)
	transport.events <- types.SessionEvent{Type: types.EventOpen}
	waitForState(t, p, StateConnected)

	transport.events <- types.SessionEvent{Type: types.EventClose, LoggedOut: true}
	waitForState(t, p, StateDisconnected)

	time.Sleep(5 * testOptions().ReconnectDelay)
	assert.Equal(t, 1, transport.startCount())

	require.NoError(t, p.Initialize(context.Background()))
	assert.Equal(t, 2, transport.startCount())
}

func TestSessionProvider_Disconnect(t *testing.T) {
	p, transport, _ := newSessionProvider(t)
	transport.events <- types.SessionEvent{Type: types.EventOpen}
	waitForState(t, p, StateConnected)

	require.NoError(t, p.Disconnect(context.Background()))
	assert.Equal(t, StateDisconnected, p.GetStatus().State)
	assert.False(t, p.IsReady())

	transport.events <- types.SessionEvent{Type: types.EventClose}
	time.Sleep(5 * testOptions().ReconnectDelay)
	assert.Equal(t, 1, transport.startCount())
}

func TestSessionProvider_InitializeFailure(t *testing.T) {
	transport := newFakeSessionTransport()
	transport.startErr = fmt.Errorf("401 unauthorized")
	p := NewSessionProvider(transport, &memoryLog{}, quietLogger(), testOptions())
	t.Cleanup(func() { _ = p.Close() })

	err := p.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))

	status := p.GetStatus()
	assert.Equal(t, StateError, status.State)
	assert.Contains(t, status.Error, "401 unauthorized")
}

func TestSessionProvider_AckNeverDowngrades(t *testing.T) {
	p, transport, log := newSessionProvider(t)
	transport.events <- types.SessionEvent{Type: types.EventOpen}
	waitForState(t, p, StateConnected)

	res, err := p.SendMessage(context.Background(), OutboundMessage{To: "081234567890", Body: "hi"})
	require.NoError(t, err)

	statusOf := func() models.DeliveryStatus {
		entry, _ := log.FindByTransportID(context.Background(), res.TransportID)
		if entry == nil {
			return ""
		}
		return entry.Status
	}

	transport.events <- types.SessionEvent{Type: types.EventAck, TransportID: res.TransportID, Ack: types.AckRead}
	require.Eventually(t, func() bool { return statusOf() == models.DeliveryStatusRead }, eventually, time.Millisecond)

	transport.events <- types.SessionEvent{Type: types.EventAck, TransportID: res.TransportID, Ack: types.AckDevice}
	transport.events <- types.SessionEvent{Type: types.EventQR, QR: "sync"}
	waitForState(t, p, StatePairing)
	assert.Equal(t, models.DeliveryStatusRead, statusOf())
}

func TestSessionProvider_AckDelivered(t *testing.T) {
	p, transport, log := newSessionProvider(t)
	transport.events <- types.SessionEvent{Type: types.EventOpen}
	waitForState(t, p, StateConnected)

	res, err := p.SendMessage(context.Background(), OutboundMessage{To: "081234567890", Body: "hi"})
	require.NoError(t, err)

	transport.events <- types.SessionEvent{Type: types.EventAck, TransportID: res.TransportID, Ack: types.AckPending}
	transport.events <- types.SessionEvent{Type: types.EventAck, TransportID: res.TransportID, Ack: types.AckServer}
	require.Eventually(t, func() bool {
		entry, _ := log.FindByTransportID(context.Background(), res.TransportID)
		return entry != nil && entry.Status == models.DeliveryStatusDelivered
	}, eventually, time.Millisecond)
}

func TestSessionProvider_GetStatusReturnsCopy(t *testing.T) {
	p, transport, _ := newSessionProvider(t)
	transport.events <- types.SessionEvent{Type: types.EventOpen, Phone: "6281111111111"}
	waitForState(t, p, StateConnected)

	status := p.GetStatus()
	*status.Phone = "tampered"
	assert.Equal(t, "6281111111111", *p.GetStatus().Phone)
}
