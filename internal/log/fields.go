package log

import "crowdfund/internal/core"

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorKind  = "error_kind"
	FieldOperation  = "operation"
	FieldProjectID  = "project_id"
	FieldOwner      = "owner"
	FieldDonor      = "donor"
	FieldAssetID    = "asset_id"
	FieldAmount     = "amount"
	FieldGoal       = "goal"
	FieldRaised     = "amount_raised"
	FieldEventID    = "event_id"
	FieldEventType  = "event_type"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentRelay     = "relay"
	ComponentAsset     = "asset"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
)

// Operations defines standard operation names
const (
	OpCreateProject = "create_project"
	OpDonate        = "donate"
	OpWithdrawOwner = "withdraw_owner"
	OpWithdrawUser  = "withdraw_user"
	OpRelay         = "relay"
	OpMigrate       = "migrate"
	OpShutdown      = "shutdown"
	OpStartup       = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithRequestID adds request ID field
func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds the error and its machine-readable kind
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorKind] = core.ErrorKind(err)
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithProject adds the identifying fields of a project
func (f LogFields) WithProject(p core.Project) LogFields {
	f[FieldProjectID] = int64(p.ID)
	f[FieldOwner] = string(p.Owner)
	f[FieldAssetID] = string(p.AssetID)
	f[FieldGoal] = int64(p.Goal)
	f[FieldRaised] = int64(p.AmountRaised)
	return f
}

// WithProjectID adds only the project id, for when the project could not be loaded
func (f LogFields) WithProjectID(id core.ProjectID) LogFields {
	f[FieldProjectID] = int64(id)
	return f
}

// WithTransfer adds donor/amount fields of a value movement
func (f LogFields) WithTransfer(donor core.Identity, amount core.Amount) LogFields {
	f[FieldDonor] = string(donor)
	f[FieldAmount] = int64(amount)
	return f
}

// WithEvent adds event identity fields
func (f LogFields) WithEvent(ev core.Event) LogFields {
	f[FieldEventID] = ev.ID
	f[FieldEventType] = string(ev.Type)
	f[FieldProjectID] = int64(ev.ProjectID)
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
