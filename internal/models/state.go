package models

import "time"

// Chat roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one transcript entry
type ChatMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Outcome describes how a graph invocation ended
type Outcome string

const (
	OutcomeAnnotated        Outcome = "annotated"
	OutcomeAnswered         Outcome = "answered"
	OutcomeReformulate      Outcome = "reformulate"
	OutcomeInsufficientData Outcome = "insufficient_data"
	OutcomeInputError       Outcome = "input_error"
	OutcomeUnavailable      Outcome = "unavailable"
)

// AgentState is the working record of one orchestration run. It is created
// fresh per invocation; only the session's chat history outlives it.
type AgentState struct {
	ImagePath string `json:"image_path,omitempty"`
	DataPath  string `json:"data_path,omitempty"`

	DashFeatures   *FeatureSet `json:"dash_features,omitempty"`
	DomainFeatures *FeatureSet `json:"domain_features,omitempty"`
	TSFeatures     *FeatureSet `json:"ts_features,omitempty"`
	Series         *TimeSeries `json:"-"`

	UserQuery   string        `json:"user_query,omitempty"`
	ChatHistory []ChatMessage `json:"chat_history"`

	FinalAnnotation string   `json:"final_annotation,omitempty"`
	Response        string   `json:"response,omitempty"`
	Outcome         Outcome  `json:"outcome,omitempty"`
	Agent           string   `json:"agent,omitempty"`
	InputError      string   `json:"input_error,omitempty"`
	Discrepancies   []string `json:"discrepancies,omitempty"`
}

// HasQuery is the graph's branch predicate
func (s AgentState) HasQuery() bool {
	return s.UserQuery != ""
}

// Output returns the terminal string of the run
func (s AgentState) Output() string {
	if s.HasQuery() {
		return s.Response
	}
	return s.FinalAnnotation
}
