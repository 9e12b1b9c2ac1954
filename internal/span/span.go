package span

import "time"

// Entity types carried in the entity_type discriminant.
const (
	EntityFunction          = "function"
	EntityManifest          = "manifest"
	EntityExecution         = "execution"
	EntityRequest           = "request"
	EntityPolicy            = "policy"
	EntityPolicyCursor      = "policy_cursor"
	EntityProvider          = "provider"
	EntityProviderExecution = "provider_execution"
	EntityBootEvent         = "boot_event"
	EntityStatusPatch       = "status_patch"
)

// Lifecycle statuses. Semantics are defined per entity type.
const (
	StatusScheduled = "scheduled"
	StatusActive    = "active"
	StatusComplete  = "complete"
	StatusError     = "error"
	StatusArchived  = "archived"
)

// Visibility values for the tenant boundary.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Well-known IDs of the five built-in kernels. Deployment tooling seeds the
// manifest whitelist with these; they must never change.
const (
	RunCodeKernelID       = "00000000-0000-4000-8000-000000000001"
	ObserverKernelID      = "00000000-0000-4000-8000-000000000002"
	RequestWorkerKernelID = "00000000-0000-4000-8000-000000000003"
	PolicyAgentKernelID   = "00000000-0000-4000-8000-000000000004"
	ProviderExecKernelID  = "00000000-0000-4000-8000-000000000005"
)

// WellKnownKernelIDs lists the built-in kernel IDs in bootstrap order.
var WellKnownKernelIDs = []string{
	RunCodeKernelID,
	ObserverKernelID,
	RequestWorkerKernelID,
	PolicyAgentKernelID,
	ProviderExecKernelID,
}

// Runtimes understood by the Stage-0 loader.
const (
	RuntimeGo  = "go"  // compiled-in kernel, dispatched via the registry
	RuntimeCEL = "cel" // stored CEL program
)

// SystemTenant owns the built-in kernels and the default manifest.
const SystemTenant = "system"

// Span is the single universal ledger record. A logical entity is the set of
// spans sharing an ID; its current state is the span with the maximum Seq.
// Spans are never updated or deleted - only appended.
type Span struct {
	ID  string `json:"id"`
	Seq int64  `json:"seq"`

	EntityType string `json:"entity_type"`

	// Provenance triple: actor, verb, subject. Audit label only.
	Who  string `json:"who,omitempty"`
	Did  string `json:"did,omitempty"`
	This string `json:"this,omitempty"`

	// At is the event timestamp in the fixed-width encoding of FormatTime.
	At string `json:"at"`

	Status      string `json:"status,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`

	// Executable payload, present on function-shaped spans.
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
	Runtime  string `json:"runtime,omitempty"`

	OwnerID    string `json:"owner_id,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	Visibility string `json:"visibility,omitempty"`

	// ParentID expresses "derived from"; RelatedTo is a set of weak
	// back-references for correlation, never ownership.
	ParentID  string   `json:"parent_id,omitempty"`
	RelatedTo []string `json:"related_to,omitempty"`

	// Execution payloads.
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      map[string]any `json:"error,omitempty"`
	DurationMS int64          `json:"duration_ms,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`

	// Structured extension bag (manifest whitelist, cursor position, ...).
	Metadata map[string]any `json:"metadata,omitempty"`

	// Integrity fields. Excluded from the content hash.
	CurrHash  string `json:"curr_hash,omitempty"`
	Signature string `json:"signature,omitempty"`
	PublicKey string `json:"public_key,omitempty"`
}

// timeLayout is fixed-width: nanoseconds are zero-padded and the zone is
// always Z, so lexicographic comparison of two encoded values equals
// temporal comparison. Cursor advancement depends on this.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// EpochTime is the zero cursor position.
const EpochTime = "1970-01-01T00:00:00.000000000Z"

// FormatTime encodes a timestamp for the at field.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// ParseTime decodes a value produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
