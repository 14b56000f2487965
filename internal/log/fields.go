package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldUserAgent     = "user_agent"
	FieldReferer       = "referer"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldLevelType     = "level_type"
	FieldLevelID       = "level_id"
	FieldGroupKind     = "group_kind"
	FieldGroupID       = "group_id"
	FieldDirectorySize = "directory_size"
	FieldSequence      = "sequence"
	FieldYear          = "year"
	FieldMonth         = "month"
	FieldExpenseID     = "expense_id"
	FieldRecordID      = "record_id"
	FieldRecordKind    = "record_kind"
	FieldEventType     = "event_type"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentAPI        = "api"
	ComponentSession    = "session"
	ComponentLevels     = "levels"
	ComponentMembership = "membership"
	ComponentFinance    = "finance"
	ComponentStorage    = "storage"
	ComponentEvents     = "events"
	ComponentCache      = "cache"
	ComponentSecurity   = "security"
	ComponentRateLimit  = "rate_limit"
	ComponentTrace      = "trace"
)

// Operations defines standard operation names
const (
	OpLogin    = "login"
	OpLogout   = "logout"
	OpRegister = "register"
	OpRefresh  = "refresh"
	OpSelect   = "select"
	OpRestore  = "restore"
	OpJoin     = "join"
	OpCreate   = "create"
	OpList     = "list"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpPublish  = "publish"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithLevel adds the level type and, for non-personal levels, its id.
func (f LogFields) WithLevel(levelType string, id int64) LogFields {
	f[FieldLevelType] = levelType
	if id != 0 {
		f[FieldLevelID] = id
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
