package models

// Mode selects how verbose the Planner and Orchestrator should be when
// producing a response.
type Mode string

const (
	ModeConcise Mode = "concise"
	ModeDefault Mode = "default"
)

// Request is a single user turn. It is immutable once constructed; the
// Orchestrator never mutates the Request it was handed.
type Request struct {
	Text string `json:"text"`
	Mode Mode   `json:"mode"`
}

// NewRequest returns a Request defaulting to ModeDefault when mode is empty.
func NewRequest(text string, mode Mode) Request {
	if mode == "" {
		mode = ModeDefault
	}
	return Request{Text: text, Mode: mode}
}
