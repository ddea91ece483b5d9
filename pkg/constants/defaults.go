package constants

// Default timeouts used by client packages
const (
	DefaultHTTPTimeoutSec = 30
	DefaultWAHATimeoutMs  = 30000
	DefaultQRTimeoutSec   = 10
)

// Hosted gateway defaults
const (
	DefaultWablasBaseURL      = "https://jkt.wablas.com"
	DefaultBreakerMaxFailures = 5
	DefaultBreakerOpenSeconds = 30
	BytesPerMegabyte          = 1024 * 1024
	DefaultMaxDocumentSizeMB  = 100
	MaxResponseBodyBytes      = 1 << 20
	MaxDiagnosticLength       = 512
)

// Session gateway defaults
const (
	DefaultSessionEventBuffer = 64
	MaxSessionNameLength      = 64
	UserChatSuffix            = "@c.us"
)
