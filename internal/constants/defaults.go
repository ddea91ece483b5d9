package constants

// Gateway timing and limits
const (
	DefaultSendDelayMs       = 2000
	DefaultReconnectDelayMs  = 3000
	DefaultMaxBodyLength     = 4096
	DefaultCountryCode       = "62"
	DefaultWhatsAppProvider  = "wablas"
	DefaultWAHASessionName   = "default"
	DefaultEventBufferSize   = 64
	DefaultMaxChunkLength    = 3500
	DefaultCircuitMaxFailure = 5
	DefaultCircuitTimeoutSec = 30
)

// Scheduler defaults
const (
	DefaultTimezone            = "Asia/Jakarta"
	DefaultDailyReminderCron   = "0 6 * * *"
	DefaultWeeklyRecapCron     = "0 18 * * 0"
	DefaultPaymentReminderCron = "0 9 1 * *"
	DefaultPurgeIntervalMin    = 60
)

// Default retry values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec           = 30
	DefaultGracefulShutdownSec      = 30
	DefaultServerPort               = 8082
	DefaultServerReadTimeoutSec     = 15
	DefaultServerWriteTimeoutSec    = 15
	DefaultServerIdleTimeoutSec     = 60
	DefaultWebhookMaxBodyBytes      = 1 << 20
	DefaultStatusStreamKeepaliveSec = 25
	ServerErrorChannelSize          = 1
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
	DefaultMessageIDLength = 8
)

// Encryption salts for the message log body column
const (
	EncryptionSalt = "swimnotify-message-log-v1"
)
