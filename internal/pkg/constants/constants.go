package constants

import "time"

// Application constants
const (
	// Service identification
	ServiceName    = "deskchat"
	ServiceVersion = "v1.0.0"
	APIVersion     = "v1"
)

// Default timeouts
const (
	DefaultHTTPTimeout      = 10 * time.Second
	DatabaseTimeout         = 10 * time.Second
	MessagingTimeout        = 5 * time.Second
	GenerationTimeout       = 60 * time.Second
	GracefulShutdownTimeout = 30 * time.Second
)

// Database configuration
const (
	DatabaseMaxOpenConns    = 1
	DatabaseMaxIdleConns    = 1
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Query limits
	DefaultQueryLimit = 50
	MaxQueryLimit     = 1000

	// Migration configuration
	MigrationsTableName = "schema_migrations"
)

// HTTP status messages
const (
	StatusOK         = "ok"
	StatusError      = "error"
	StatusProcessing = "processing"
)

// Error messages
const (
	ErrMsgConversationNotFound = "conversation not found"
	ErrMsgInvalidRequest       = "invalid request"
	ErrMsgInternalServer       = "internal server error"
	ErrMsgGenerationFailed     = "generation failed"
)

// Success messages
const (
	MsgConversationDeleted = "conversation deleted"
	MsgDataCleared         = "all chat data cleared"
	MsgSettingsSaved       = "settings saved"
)

// Log levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelFatal = "fatal"
)

// Log formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// HTTP headers
const (
	HeaderContentType = "Content-Type"
	HeaderRequestID   = "X-Request-ID"
)

// Content types
const (
	ContentTypeJSON     = "application/json"
	ContentTypeText     = "text/plain; charset=utf-8"
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
)

// Model defaults
const (
	DefaultModel       = "gemini-2.5-flash"
	DefaultMaxTokens   = 2048
	DefaultTemperature = 0.7
	DefaultLLMBaseURL  = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultLLMProvider = "gemini"

	DefaultSystemInstruction = "Answer clearly and concisely."
)

// WebSocket configuration
const (
	WebSocketWriteWait      = 10 * time.Second
	WebSocketPongWait       = 60 * time.Second
	WebSocketPingPeriod     = (WebSocketPongWait * 9) / 10
	WebSocketMaxMessageSize = 512
	WebSocketSendBuffer     = 256
)

// File and directory paths
const (
	DefaultDataDir        = "./data"
	DefaultJournalPath    = "./data/journal.db"
	ConfigFileName        = "config.json"
	ChatDataDir           = "chat-data"
	ConversationsFileName = "conversations.json"
	UIPreferencesDir      = "ui-preferences"
	UIPreferencesFileName = "ui-preferences.json"
)

// Store names as registered in the store registry
const (
	StoreConfig = "config"
	StoreChat   = "chat"
	StoreUI     = "ui"
)

// Environment variable names
const (
	EnvPort      = "DESKCHAT_SERVER_PORT"
	EnvHost      = "DESKCHAT_SERVER_HOST"
	EnvLogLevel  = "DESKCHAT_LOGGING_LEVEL"
	EnvLogFormat = "DESKCHAT_LOGGING_FORMAT"
	EnvDataDir   = "DESKCHAT_DATA_DIR"
	EnvNATSURL   = "DESKCHAT_NATS_URL"
	EnvLLMAPIKey = "DESKCHAT_LLM_API_KEY"

	// EnvGeminiAPIKey is the read-only fallback for the stored API key
	EnvGeminiAPIKey = "GEMINI_API_KEY"
)

// Retention and cleanup
const (
	DefaultDataRetentionDays = 30
	DefaultKeepRecentDays    = 7
	DefaultMaxStorageSizeMB  = 100
	MinMaxStorageSizeMB      = 10
	MinKeepRecentDays        = 1
	DefaultCleanupSchedule   = "weekly"
	DefaultCleanupInterval   = time.Hour
	MaxPersistedMessages     = 50
	DefaultMaxConversations  = 100
	BytesPerMB               = 1024 * 1024
	DailyCleanupThreshold    = 24 * time.Hour
	WeeklyCleanupThreshold   = 7 * 24 * time.Hour
	MonthlyCleanupThreshold  = 30 * 24 * time.Hour
	CleanupScheduleDaily     = "daily"
	CleanupScheduleWeekly    = "weekly"
	CleanupScheduleMonthly   = "monthly"
	IncognitoMessageID       = "incognito-message"
	ExportTimestampLayout    = "2006-01-02 15:04:05"
	ExportSeparatorWidth     = 50
)

// CleanupSchedules lists the accepted cleanup schedule values
var CleanupSchedules = []string{CleanupScheduleDaily, CleanupScheduleWeekly, CleanupScheduleMonthly}

// Themes
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// Themes lists the accepted theme values
var Themes = []string{ThemeLight, ThemeDark, ThemeSystem}

// Export formats
const (
	ExportFormatJSON     = "json"
	ExportFormatText     = "txt"
	ExportFormatMarkdown = "md"
)

// ExportFormats lists the accepted conversation export formats
var ExportFormats = []string{ExportFormatJSON, ExportFormatText, ExportFormatMarkdown}

// UI bounds
const (
	MinFontSize          = 12
	MaxFontSize          = 24
	MinTransparencyLevel = 0
	MaxTransparencyLevel = 100
)
