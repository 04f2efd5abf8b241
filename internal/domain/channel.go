package domain

// ChannelKind separates the two independent link families between a pair.
type ChannelKind int

const (
	ChannelAmbient ChannelKind = iota
	ChannelScreen
)

func (k ChannelKind) String() string {
	switch k {
	case ChannelAmbient:
		return "ambient"
	case ChannelScreen:
		return "screen"
	}
	return "unknown"
}

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// Initiates reports whether local opens the ambient link toward remote.
// The greater id initiates; ordering is plain byte-wise string comparison.
func Initiates(local, remote ParticipantID) bool {
	return local > remote
}

// RoleFor derives the role of local in the (local, remote) pair.
func RoleFor(local, remote ParticipantID) Role {
	if Initiates(local, remote) {
		return RoleInitiator
	}
	return RoleResponder
}
