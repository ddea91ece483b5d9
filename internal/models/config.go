package models

// Config holds the application configuration
type Config struct {
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Database  DatabaseConfig  `json:"database"`
	Roster    RosterConfig    `json:"roster"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Server    ServerConfig    `json:"server"`
	Retry     RetryConfig     `json:"retry"`
	Tracing   TracingConfig   `json:"tracing"`
	LogLevel  string          `json:"log_level"`
}

// WhatsAppConfig selects the provider and carries the settings of both
// transports. Only the selected provider's block is read.
type WhatsAppConfig struct {
	Provider      string       `json:"provider"`
	CountryCode   string       `json:"countryCode"`
	SendDelayMs   int          `json:"sendDelayMs"`
	ReconnectMs   int          `json:"reconnectMs"`
	MaxBodyLength int          `json:"maxBodyLength"`
	WAHA          WAHAConfig   `json:"waha"`
	Wablas        WablasConfig `json:"wablas"`
}

// WAHAConfig holds settings for the session-based gateway
type WAHAConfig struct {
	APIBaseURL    string `json:"api_base_url"`
	APIKey        string `json:"api_key"`
	SessionName   string `json:"session_name"`
	TimeoutMs     int    `json:"timeout_ms"`
	WebhookSecret string `json:"webhook_secret"`
}

// WablasConfig holds settings for the hosted gateway
type WablasConfig struct {
	BaseURL   string `json:"base_url"`
	Token     string `json:"token"`
	Secret    string `json:"secret"`
	TimeoutMs int    `json:"timeout_ms"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// RosterConfig points at the academy data export used to build recipient lists
type RosterConfig struct {
	Path string `json:"path"`
}

// SchedulerConfig holds cron expressions for the scheduled producers
type SchedulerConfig struct {
	Timezone         string `json:"timezone"`
	DailyReminder    string `json:"dailyReminder"`
	WeeklyRecap      string `json:"weeklyRecap"`
	PaymentReminder  string `json:"paymentReminder"`
	AdminPhone       string `json:"adminPhone"`
	MaxChunkLength   int    `json:"maxChunkLength"`
	PurgeIntervalMin int    `json:"purgeIntervalMin"`
	Disabled         bool   `json:"disabled"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                  int `json:"port"`
	ReadTimeoutSec        int `json:"readTimeoutSec"`
	WriteTimeoutSec       int `json:"writeTimeoutSec"`
	IdleTimeoutSec        int `json:"idleTimeoutSec"`
	WebhookMaxBodyBytes   int `json:"webhookMaxBodyBytes"`
	StatusStreamKeepalive int `json:"statusStreamKeepaliveSec"`
}

// RetryConfig holds retry related configurations
type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled"`
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
