package pubsub

// MessageCreated is published after a chat message has been stored and broadcast.
type MessageCreated struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
	Length   int    `json:"length"`
}

// MessageDeleted is published after a moderator retracted a message.
type MessageDeleted struct {
	ID          string `json:"id"`
	ModeratorID string `json:"moderator_id"`
	Existed     bool   `json:"existed"`
}

// RosterChanged is published whenever a connection joins or leaves.
type RosterChanged struct {
	Connections int    `json:"connections"`
	AccountID   string `json:"account_id"`
	Joined      bool   `json:"joined"`
}

// AccountUpdated is published when an admin changes an account's role or status.
type AccountUpdated struct {
	ID     string `json:"id"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
	By     string `json:"by"`
}

// Topics carried on the internal bus.
var (
	TopicMessageCreated = NewEvent[MessageCreated]("chat.message.created")
	TopicMessageDeleted = NewEvent[MessageDeleted]("chat.message.deleted")
	TopicRosterChanged  = NewEvent[RosterChanged]("chat.roster.changed")
	TopicAccountUpdated = NewEvent[AccountUpdated]("admin.account.updated")
)
