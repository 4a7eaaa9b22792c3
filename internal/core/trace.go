package core

// EvaluationTrace captures the detailed trace of an access decision.
type EvaluationTrace struct {
	Method string `yaml:"method" json:"method"`
	Path   string `yaml:"path" json:"path"`

	// Steps contains every scope or allowed entry that was considered, in order.
	Steps []TraceStep `yaml:"steps" json:"steps"`

	// FinalDecision indicates whether access was granted or denied.
	FinalDecision bool `yaml:"final_decision" json:"final_decision"`

	// DecidedBy is the scope name or allowed entry that decided, if any.
	DecidedBy string `yaml:"decided_by,omitempty" json:"decided_by,omitempty"`
}

// TraceStep captures why a specific scope or allowed entry matched or failed.
type TraceStep struct {
	Source  string `yaml:"source" json:"source"` // "scope" or "allowed"
	Name    string `yaml:"name" json:"name"`
	Kind    string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Matched bool   `yaml:"matched" json:"matched"`
	Reason  string `yaml:"reason,omitempty" json:"reason,omitempty"`
}
