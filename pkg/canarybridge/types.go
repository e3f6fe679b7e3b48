package canarybridge

import (
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/app/forwarder"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/domain"
	"github.com/huntermatuse/simple-canary-mqtt-forwarder/internal/ports"
)

// Tag is a historian path with '.' separators.
type Tag = domain.Tag

// TVQ is one timestamp/value/quality record. Absent fields are nil.
type TVQ = domain.TVQ

// Quality is the historian's opaque quality code.
type Quality = domain.Quality

// Snapshot maps each requested tag to its live records.
type Snapshot = domain.Snapshot

// Entry holds the records returned for one tag.
type Entry = domain.Entry

// Message is the payload published for one tag per cycle.
type Message = domain.OutboundMessage

// Source opens sessions against a historian.
type Source = ports.Source

// Session enumerates tags and fetches live snapshots.
type Session = ports.Session

// Publisher delivers encoded payloads to a broker topic.
type Publisher = ports.Publisher

// Encoder turns a Message into wire bytes.
type Encoder = ports.Encoder

// Observability emits logs and metrics about the forwarding loop.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// Policy controls the poll interval and the pause after a failed cycle.
type Policy = ports.Policy

// State is the forwarder lifecycle position.
type State = forwarder.State

const (
	StateInitializing     = forwarder.StateInitializing
	StateLoadingTags      = forwarder.StateLoadingTags
	StateConnectingBroker = forwarder.StateConnectingBroker
	StatePolling          = forwarder.StatePolling
	StateShuttingDown     = forwarder.StateShuttingDown
	StateStopped          = forwarder.StateStopped
)

var (
	ErrLoadTags      = forwarder.ErrLoadTags
	ErrConnectBroker = forwarder.ErrConnectBroker
	ErrOpenSession   = forwarder.ErrOpenSession
)
