package state

import (
	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
)

// AddPeer registers a peer node. A duplicate add is a no-op signalled with
// false, not an error.
func (s *State) AddPeer(id string) (bool, error) {
	peer, err := record.NewPeerNode(id)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added, err := s.store.AddPeer(peer)
	if err != nil {
		return false, err
	}

	if added {
		if err := s.reloadCaches(); err != nil {
			return false, err
		}
		s.evHandler("state: AddPeer: peer[%s] added", id)
	}

	return added, nil
}

// RemovePeer deregisters a peer node. A missing peer is signalled with
// false, not an error.
func (s *State) RemovePeer(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.store.RemovePeer(id)
	if err != nil {
		return false, err
	}

	if removed {
		if err := s.reloadCaches(); err != nil {
			return false, err
		}
		s.evHandler("state: RemovePeer: peer[%s] removed", id)
	}

	return removed, nil
}

// KnownPeers returns a copy of the known peer nodes.
func (s *State) KnownPeers() []record.PeerNode {
	s.mu.Lock()
	defer s.mu.Unlock()

	peers := make([]record.PeerNode, len(s.peers))
	copy(peers, s.peers)

	return peers
}
