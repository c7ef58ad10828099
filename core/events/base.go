package events

import (
	"strings"
	"time"
)

// Kind names an event type, namespaced as "<namespace>.<name>".
type Kind string

// Namespace returns the part of the kind before the first dot, or the
// whole kind when it carries no namespace.
func (k Kind) Namespace() string {
	namespace, _, found := strings.Cut(string(k), ".")
	if !found {
		return string(k)
	}
	return namespace
}

type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base carries the kind and creation time shared by every event. Embed it
// and construct it through NewBase so timestamps are never left zero.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
