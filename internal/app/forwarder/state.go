package forwarder

// State is the forwarder's lifecycle position.
type State int32

const (
	StateInitializing State = iota
	StateLoadingTags
	StateConnectingBroker
	StatePolling
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateLoadingTags:
		return "loading_tags"
	case StateConnectingBroker:
		return "connecting_broker"
	case StatePolling:
		return "polling"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
