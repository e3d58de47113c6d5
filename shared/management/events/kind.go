package events

// Kind is the type of a domain event
type Kind int

const (
	// PeerCreated indicates that a peer was created on the service
	PeerCreated Kind = iota + 1
	// PeerDeleted indicates that a peer was removed from the service
	PeerDeleted
	// PeerUpdated indicates that a peer was renamed or got a new address
	PeerUpdated
	// PeerEnabled indicates that a peer was enabled
	PeerEnabled
	// PeerDisabled indicates that a peer was disabled
	PeerDisabled
	// SessionLogin indicates that the client logged in
	SessionLogin
	// SessionLogout indicates that the client logged out
	SessionLogout
)

const (
	PeerCreatedMessage   string = "Peer created"
	PeerDeletedMessage   string = "Peer deleted"
	PeerUpdatedMessage   string = "Peer updated"
	PeerEnabledMessage   string = "Peer enabled"
	PeerDisabledMessage  string = "Peer disabled"
	SessionLoginMessage  string = "Logged in"
	SessionLogoutMessage string = "Logged out"
)

// Kinds lists every known kind
var Kinds = []Kind{PeerCreated, PeerDeleted, PeerUpdated, PeerEnabled, PeerDisabled, SessionLogin, SessionLogout}

// Message returns a string representation of an event kind
func (k Kind) Message() string {
	switch k {
	case PeerCreated:
		return PeerCreatedMessage
	case PeerDeleted:
		return PeerDeletedMessage
	case PeerUpdated:
		return PeerUpdatedMessage
	case PeerEnabled:
		return PeerEnabledMessage
	case PeerDisabled:
		return PeerDisabledMessage
	case SessionLogin:
		return SessionLoginMessage
	case SessionLogout:
		return SessionLogoutMessage
	default:
		return "UNKNOWN_EVENT"
	}
}

// String returns a stable code of an event kind
func (k Kind) String() string {
	switch k {
	case PeerCreated:
		return "peer.created"
	case PeerDeleted:
		return "peer.deleted"
	case PeerUpdated:
		return "peer.updated"
	case PeerEnabled:
		return "peer.enabled"
	case PeerDisabled:
		return "peer.disabled"
	case SessionLogin:
		return "session.login"
	case SessionLogout:
		return "session.logout"
	default:
		return "UNKNOWN_EVENT"
	}
}
