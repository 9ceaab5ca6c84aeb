package app

import "github.com/natlachat/natla/internal/domain"

// GhostPolicy decides which registered sessions a new identity makes
// stale. Kept as its own object so the heuristic stays visible and can
// be swapped for a stronger identity scheme.
type GhostPolicy interface {
	Stale(members []PeerInfo, displayName string, incoming domain.ConnID) []domain.ConnID
}

// DisplayNameGhostPolicy treats any session in the room that carries
// the same display name under a different connection id as a ghost
// left behind by an ungraceful disconnect. The newer identity always
// wins. Two distinct users picking the same name will collide; that is
// the accepted limit of this heuristic.
type DisplayNameGhostPolicy struct{}

func (DisplayNameGhostPolicy) Stale(members []PeerInfo, displayName string, incoming domain.ConnID) []domain.ConnID {
	var stale []domain.ConnID
	for _, m := range members {
		if m.Conn != incoming && m.DisplayName == displayName {
			stale = append(stale, m.Conn)
		}
	}
	return stale
}
