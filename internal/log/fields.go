package log

// Field names shared by every component.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUser        = "user"
	FieldError       = "error"
	FieldErrorKind   = "error_kind"
	FieldStore       = "store"
	FieldYear        = "fiscal_year"
	FieldMonth       = "month"
	FieldLine        = "line"
	FieldGroupRef    = "group_ref"
	FieldAmountCents = "amount_cents"
	FieldEventType   = "event_type"
	FieldEventID     = "event_id"
)

const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentLedger  = "ledger"
	ComponentImport  = "import"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentOutbox  = "outbox"
	ComponentWorker  = "worker"
	ComponentSheets  = "sheets"
	ComponentBlob    = "blob"
	ComponentCLI     = "cli"
)
