package ipc

import "encoding/json"

// Actions sent from the supervisor to a worker
const (
	ActionInit = "init"
	ActionExit = "exit"
)

// Result tags sent from a worker to the supervisor
const (
	ResultPing            = "ping"
	ResultLog             = "log"
	ResultInitiated       = "initiated"
	ResultBlockchainReady = "blockchainReady"
	ResultBlockchainExit  = "blockchainExit"
)

// Message is the unit exchanged over a worker channel. Exactly one of
// Action, Result or Error is set
type Message struct {
	// Supervisor -> worker
	Action  string          `json:"action,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`

	// Worker -> supervisor; Result is the tag of the logical stream
	Result  string          `json:"result,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Log results
	Message []string `json:"message,omitempty"`
	Type    string   `json:"type,omitempty"`

	// Failures
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// NewAction builds a supervisor -> worker message with JSON encoded options
func NewAction(action string, options interface{}) (Message, error) {
	msg := Message{Action: action}
	if options == nil {
		return msg, nil
	}
	raw, err := json.Marshal(options)
	if err != nil {
		return Message{}, err
	}
	msg.Options = raw
	return msg, nil
}

// NewResult builds a worker -> supervisor message for tag
func NewResult(tag string) Message {
	return Message{Result: tag}
}

// DecodeOptions unmarshals the options of an action message into v
func (m Message) DecodeOptions(v interface{}) error {
	if len(m.Options) == 0 {
		return nil
	}
	return json.Unmarshal(m.Options, v)
}
