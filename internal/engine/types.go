package engine

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Prompt is the system/user pair a stage sends to the model.
type Prompt struct {
	System string
	User   string
}

// Messages renders the prompt as chat messages, omitting an empty system part.
func (p Prompt) Messages() []Message {
	msgs := make([]Message, 0, 2)
	if p.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: p.System})
	}
	return append(msgs, Message{Role: "user", Content: p.User})
}

// ChatOptions tunes a single chat call.
type ChatOptions struct {
	// Schema requests structured JSON output. Backends that cannot enforce a
	// schema fall back to a generic JSON mode.
	Schema *Schema
	// Temperature overrides the backend default when non-nil.
	Temperature *float64
}

// Schema describes the expected JSON output structure for structured chat responses.
type Schema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes a single field within a Schema.
type SchemaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// PullProgress reports download progress for a model pull operation.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}
