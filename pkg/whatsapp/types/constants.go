package types

const (
	APIBase                = "/api"
	EndpointSendText       = "/sendText"
	EndpointSessionsStart  = "/sessions/start"
	EndpointSessionsStop   = "/sessions/stop"
	EndpointSessionsLogout = "/sessions/logout"
	EndpointSessions       = "/sessions"
	EndpointAuthQR         = "/auth/qr"
	EndpointMe             = "/me"
)

// Webhook event names
const (
	WebhookSessionStatus = "session.status"
	WebhookMessageAck    = "message.ack"
)

// WAHA ack levels
const (
	AckError   = -1
	AckPending = 0
	AckServer  = 1
	AckDevice  = 2
	AckRead    = 3
	AckPlayed  = 4
)
