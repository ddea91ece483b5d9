package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageID_Unmarshal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected MessageID
	}{
		{"plain string", `"true_1@c.us_A"`, "true_1@c.us_A"},
		{"serialized object", `{"fromMe":true,"_serialized":"true_1@c.us_B","id":"B"}`, "true_1@c.us_B"},
		{"object without serialized", `{"id":"C"}`, "C"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id MessageID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &id))
			assert.Equal(t, tt.expected, id)
		})
	}

	var id MessageID
	assert.Error(t, json.Unmarshal([]byte(`12`), &id))
}

func TestWebhookEvent_Decode(t *testing.T) {
	raw := `{"id":"evt_1","event":"session.status","session":"default","me":{"id":"628@c.us"},"payload":{"status":"WORKING"}}`

	var event WebhookEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	assert.Equal(t, WebhookSessionStatus, event.Event)
	require.NotNil(t, event.Me)

	var payload SessionStatusPayload
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, SessionStatusWorking, payload.Status)
}
