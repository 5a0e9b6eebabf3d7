package msg

// Record field names shared by the command and reply streams
const (
	// FieldMessage carries the JSON command envelope on the command stream
	FieldMessage = "message"

	// Reply stream fields
	FieldID    = "id"
	FieldError = "error"
	FieldData  = "data"
)

// Default stream names
const (
	StreamCommands = "exchange.commands"
	StreamReplies  = "exchange.replies"
)
