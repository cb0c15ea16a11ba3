// Package crisis defines the shared data model for the zero-knowledge
// encryption subsystem: the semantic categories of protected data, the
// encryption context that travels alongside ciphertext, the envelope wire
// format, and the closed error taxonomy exposed to callers.
package crisis

import "fmt"

// DataType tags an envelope with its semantic category. The tag is metadata
// only; it is never stored inside the envelope.
type DataType string

const (
	DataCrisisMessage    DataType = "crisis_message"
	DataSafetyPlan       DataType = "safety_plan"
	DataEmergencyContact DataType = "emergency_contact"
	DataRiskAssessment   DataType = "risk_assessment"
	DataSessionNotes     DataType = "session_notes"
	DataBehavioral       DataType = "behavioral_data"
	DataCrisisHistory    DataType = "crisis_history"
)

// EmergencyLevel grades the urgency of the interaction that produced a piece
// of data. It influences key-derivation parameters and session lifetimes.
type EmergencyLevel string

const (
	LevelNone     EmergencyLevel = ""
	LevelLow      EmergencyLevel = "low"
	LevelMedium   EmergencyLevel = "medium"
	LevelHigh     EmergencyLevel = "high"
	LevelCritical EmergencyLevel = "critical"
)

// Urgent reports whether the level triggers the fast-path authentication
// policy (reduced iterations, extended session).
func (l EmergencyLevel) Urgent() bool {
	return l == LevelHigh || l == LevelCritical
}

func validLevel(l EmergencyLevel) bool {
	switch l {
	case LevelNone, LevelLow, LevelMedium, LevelHigh, LevelCritical:
		return true
	}
	return false
}

func validDataType(d DataType) bool {
	switch d {
	case DataCrisisMessage, DataSafetyPlan, DataEmergencyContact,
		DataRiskAssessment, DataSessionNotes, DataBehavioral, DataCrisisHistory:
		return true
	}
	return false
}

// Context binds an envelope to its semantic category without being itself
// sensitive. It is not persisted inside the envelope; it travels alongside it
// and influences derivation parameters.
type Context struct {
	DataType       DataType
	SessionID      string
	UserID         string
	EmergencyLevel EmergencyLevel
	Anonymous      bool
}

// Validate checks the context against the closed enums and the anonymity
// invariant: an anonymous context must not carry a user identifier.
func (c Context) Validate() error {
	if !validDataType(c.DataType) {
		return fmt.Errorf("%w: unknown data type %q", ErrInvalidContext, c.DataType)
	}
	if !validLevel(c.EmergencyLevel) {
		return fmt.Errorf("%w: unknown emergency level %q", ErrInvalidContext, c.EmergencyLevel)
	}
	if c.Anonymous && c.UserID != "" {
		return fmt.Errorf("%w: anonymous context must not carry a user ID", ErrInvalidContext)
	}
	return nil
}
