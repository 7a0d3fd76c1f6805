package events

// Message is one event payload and the subject it arrived on. The subject
// carries the document type or index the event is about.
type Message struct {
	Subject string
	Data    []byte
}

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers messages matching subject, which may end in a
	// wildcard such as TopicRecords. The returned cancel function
	// unsubscribes and closes the channel.
	Subscribe(subject string) (<-chan Message, func(), error)
	Close() error
}
