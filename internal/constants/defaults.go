package constants

// Storage bounds
const (
	MaxStoredMessages = 100
	MaxUploadLogs     = 10
)

// Deduplication window: identical sender+body observations closer together
// than this are treated as one logical message.
const DedupeWindowMs = 1000

// Upload defaults
const (
	DefaultServerURL        = "http://192.168.1.100:8000"
	UploadPath              = "/upload-sms"
	DefaultUploadTimeoutSec = 10
)

// Gateway defaults
const DefaultGatewayTimeoutSec = 10

// Sync defaults
const DefaultSyncIntervalMin = 15

// Server defaults
const (
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Database retry defaults
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultDatabaseRetryAttempts = 3
)

// EncryptionSalt is the application-level salt mixed into PBKDF2 key derivation.
const EncryptionSalt = "smsrelay-ledger-salt-v1"

// DefaultAllowedSenders seeds the allow-list when the store has none configured.
var DefaultAllowedSenders = []string{
	"M-PESA", "MPESA", "Safaricom", "IM-BANK", "EQUITY", "KCB", "COOP BANK",
	"STANCHART", "ABSA", "DTB", "I&M BANK", "FAMILY BANK", "SID", "TALA",
}
