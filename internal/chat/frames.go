package chat

// FrameTypeReminder tags notification frames pushed by the reminder
// dispatcher so clients can distinguish them from chat traffic.
const FrameTypeReminder = "reminder"

// InboundFrame is a chat message received from a client. Extra fields are
// ignored; a frame missing either field is dropped.
type InboundFrame struct {
	To      int64  `json:"to"`
	Content string `json:"content"`
}

// ChatFrame is a chat message forwarded to the recipient's connection.
type ChatFrame struct {
	From    int64  `json:"from"`
	Content string `json:"content"`
	Room    string `json:"room"`
}

// ReminderFrame is an appointment notification pushed to a connection.
type ReminderFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewReminderFrame wraps a reminder text in its tagged frame.
func NewReminderFrame(message string) ReminderFrame {
	return ReminderFrame{Type: FrameTypeReminder, Message: message}
}
