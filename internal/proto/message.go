package proto

// Envelope tags exchanged over the wire.
const (
	TypeUserID           = "userId"
	TypeNewUser          = "newUser"
	TypeUserList         = "userList"
	TypeMessage          = "message"
	TypeUserDisconnected = "userDisconnected"
	TypeStatus           = "status"
)

// Event is one server-emitted envelope. Every implementation maps to exactly one tag.
type Event interface {
	EventType() string
}

// User is the public view of a connected member.
type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IdentityAssigned is sent privately to a new connection with its identity.
type IdentityAssigned struct {
	UserID int64 `json:"userId"`
}

// MemberJoined announces a new member to everyone.
type MemberJoined struct {
	User User `json:"user"`
}

// RosterSnapshot carries the full membership, ordered by ascending id.
type RosterSnapshot struct {
	Users []User `json:"users"`
}

// ChatMessage is a chat line stamped with its sender.
type ChatMessage struct {
	Message   string `json:"message"`
	UserID    int64  `json:"userId"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// MemberLeft announces a departure.
type MemberLeft struct {
	UserID int64 `json:"userId"`
}

// Status is an informational line sent once to a new connection.
type Status struct {
	Message string `json:"message"`
}

func (IdentityAssigned) EventType() string { return TypeUserID }
func (MemberJoined) EventType() string     { return TypeNewUser }
func (RosterSnapshot) EventType() string   { return TypeUserList }
func (ChatMessage) EventType() string      { return TypeMessage }
func (MemberLeft) EventType() string       { return TypeUserDisconnected }
func (Status) EventType() string           { return TypeStatus }

// Inbound is the envelope a client sends.
type Inbound struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ChatRequest is a successfully decoded inbound chat line.
type ChatRequest struct {
	Content string
	// Legacy is set when the payload was plain text rather than an envelope.
	Legacy bool
}
