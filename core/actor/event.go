package actor

// Event is a message delivered to an actor's mailbox. Implementations are
// plain structs; EventType is used for transition matching, logging and
// metrics labels.
type Event interface {
	EventType() string
}
