package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldKind        = "kind"
	FieldRecordID    = "record_id"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldSavingType  = "saving_type"
	FieldRows        = "rows"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentSession   = "session"
	ComponentStore     = "store"
	ComponentSheets    = "sheets"
	ComponentSQLite    = "sqlite"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSyncer    = "syncer"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpUpdate   = "update"
	OpList     = "list"
	OpImport   = "import"
	OpExport   = "export"
	OpSync     = "sync"
	OpLoad     = "load"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)
