package eventlog

import (
	"encoding/json"
	"time"
)

// Bucket classifies an event stream within a session.
type Bucket string

const (
	// BucketProcess carries pipeline phase markers.
	BucketProcess Bucket = "ELIGIBILITY_PROCESS"
	// BucketThinking carries fine-grained intra-phase progress messages.
	BucketThinking Bucket = "THINKING"
	// BucketOutput carries the response envelope of a completed turn.
	BucketOutput Bucket = "OUTPUT"
)

// Status is the lifecycle marker a process event carries.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Phase names one step of the turn pipeline. The process view groups
// thinking events under the latest marker of the same phase.
type Phase string

const (
	PhaseCaseLoading      Phase = "case_loading"
	PhasePatientLoading   Phase = "patient_loading"
	PhaseInterpretation   Phase = "interpretation"
	PhaseEligibilityCheck Phase = "eligibility_check"
	PhaseScoring          Phase = "scoring"
	PhaseVisitScoring     Phase = "visit_scoring"
	PhasePlanning         Phase = "planning"
	PhasePersistence      Phase = "persistence"
)

// Data type tags thinking events carry in metadata, so a client can render
// the right card for the payload being fetched.
const (
	DataTypeDemographics = "demographics"
	DataTypeInsurance    = "insurance"
	DataTypeVisits       = "visits"
	DataTypeEligibility  = "eligibility"
)

// Payload is the wire shape of a single event. Process events fill Status and
// Data; thinking events fill Metadata instead.
type Payload struct {
	Phase     Phase          `json:"phase,omitempty"`
	Status    Status         `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Record is one persisted event row. Within a session, IDs follow insertion
// order and the process view relies on that ordering.
type Record struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Bucket    Bucket          `json:"bucket"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
