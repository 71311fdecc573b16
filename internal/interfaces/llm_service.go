package interfaces

// Attachment is binary content sent alongside a message, such as a chart image
type Attachment struct {
	// Name is the original file name, used for logging only
	Name string

	// MIMEType is the IANA media type, e.g. "image/png"
	MIMEType string

	// Data holds the raw bytes; providers encode them as required
	Data []byte
}

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string

	// Attachments are sent with the message by providers that accept them
	Attachments []Attachment
}
