package models

// CallbackAction type of callback action
type CallbackAction string

const (
	CallbackRead   CallbackAction = "rd" // open the message
	CallbackUnread CallbackAction = "un" // clear \Seen
	CallbackSpam   CallbackAction = "sp"
	CallbackTrash  CallbackAction = "tr"
)

// CallbackData structure for inline button callback
type CallbackData struct {
	Action    CallbackAction `json:"a"`
	AccountID int64          `json:"acc"`
	UID       uint32         `json:"uid"`
	// Folder is the literal folder of UID, or its logical role when the
	// literal name does not fit into the callback payload.
	Folder string `json:"f,omitempty"`
}
