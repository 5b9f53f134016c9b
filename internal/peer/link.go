package peer

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/Cowork/internal/domain"
)

type LinkState int

const (
	LinkIdle LinkState = iota
	LinkOffering
	LinkAnswering
	LinkConnected
	LinkClosed
)

func (s LinkState) String() string {
	switch s {
	case LinkIdle:
		return "idle"
	case LinkOffering:
		return "offering"
	case LinkAnswering:
		return "answering"
	case LinkConnected:
		return "connected"
	case LinkClosed:
		return "closed"
	}
	return "unknown"
}

// Link holds negotiation state for one remote connection. Candidates that
// arrive before the remote description is set are buffered in receipt order
// and flushed right after it is applied.
type Link struct {
	remote    domain.ConnID
	state     LinkState
	media     MediaLink
	pending   []webrtc.ICECandidateInit
	remoteSet bool
}

func newLink(remote domain.ConnID) *Link {
	return &Link{remote: remote, state: LinkIdle}
}
