// Package store handles all the lower level support for maintaining the
// ledger on disk. Three record families are kept under key prefixes: blocks
// by index, transactions by signature, and peer nodes by address. Every
// logical mutation runs as a single transaction so the chain state on disk
// is never partially written.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/record"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

const (
	blockPrefix = "block/"
	txPrefix    = "tx/"
	peerPrefix  = "peer/"
)

// Store manages reading and writing of ledger records.
type Store struct {
	db *badger.DB
}

// New opens the ledger database at the specified path.
func New(dbPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbPath).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close cleanly releases the storage area.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// Blocks

// SaveBlock persists a single block.
func (s *Store) SaveBlock(block record.Block) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, blockKey(block.Index), block)
	})
}

// Blocks returns every block ordered by index.
func (s *Store) Blocks() ([]record.Block, error) {
	var blocks []record.Block

	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, blockPrefix, func(data []byte) error {
			var block record.Block
			if err := json.Unmarshal(data, &block); err != nil {
				return err
			}
			blocks = append(blocks, block)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return blocks, nil
}

// =============================================================================
// Transactions

// SaveTransaction persists a single transaction keyed by its signature.
func (s *Store) SaveTransaction(tx record.Transaction) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, txKey(tx.Signature), tx)
	})
}

// Transaction returns the transaction with the specified signature.
func (s *Store) Transaction(signature string) (record.Transaction, error) {
	var tx record.Transaction

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(txKey(signature))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		return item.Value(func(data []byte) error {
			return json.Unmarshal(data, &tx)
		})
	})
	if err != nil {
		return record.Transaction{}, err
	}

	return tx, nil
}

// AllTransactions returns the full local transaction history.
func (s *Store) AllTransactions() ([]record.Transaction, error) {
	return s.transactions(func(record.Transaction) bool { return true })
}

// OpenTransactions returns the transactions not yet included in any block.
func (s *Store) OpenTransactions() ([]record.Transaction, error) {
	return s.transactions(func(tx record.Transaction) bool { return !tx.Mined })
}

// MinedTransactions returns the transactions included in accepted blocks.
func (s *Store) MinedTransactions() ([]record.Transaction, error) {
	return s.transactions(func(tx record.Transaction) bool { return tx.Mined })
}

func (s *Store) transactions(keep func(record.Transaction) bool) ([]record.Transaction, error) {
	var txs []record.Transaction

	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, txPrefix, func(data []byte) error {
			var tx record.Transaction
			if err := json.Unmarshal(data, &tx); err != nil {
				return err
			}
			if keep(tx) {
				txs = append(txs, tx)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return txs, nil
}

// =============================================================================
// Atomic multi-record mutations

// CommitMinedBlock writes an accepted block, its reward transaction, and the
// mined status of the listed open transactions as one unit. Either every
// record commits or none do. Signatures without a matching local open
// transaction are skipped.
func (s *Store) CommitMinedBlock(block record.Block, reward record.Transaction, minedSignatures []string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, blockKey(block.Index), block); err != nil {
			return err
		}

		if err := setJSON(txn, txKey(reward.Signature), reward); err != nil {
			return err
		}

		for _, sig := range minedSignatures {
			item, err := txn.Get(txKey(sig))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}

			var tx record.Transaction
			if err := item.Value(func(data []byte) error {
				return json.Unmarshal(data, &tx)
			}); err != nil {
				return err
			}

			idx := block.Index
			tx.Mined = true
			tx.Block = &idx

			if err := setJSON(txn, txKey(sig), tx); err != nil {
				return err
			}
		}

		return nil
	})
}

// ReplaceChain deletes the local blocks and transactions and installs the
// winning peer's history in their place, as one unit.
func (s *Store) ReplaceChain(blocks []record.Block, txs []record.Transaction) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range []string{blockPrefix, txPrefix} {
			keys, err := keysWithPrefix(txn, prefix)
			if err != nil {
				return err
			}
			for _, key := range keys {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		}

		for _, block := range blocks {
			if err := setJSON(txn, blockKey(block.Index), block); err != nil {
				return err
			}
		}

		for _, tx := range txs {
			if err := setJSON(txn, txKey(tx.Signature), tx); err != nil {
				return err
			}
		}

		return nil
	})
}

// =============================================================================
// Peers

// AddPeer persists a peer node. A duplicate add is signalled with false, not
// an error.
func (s *Store) AddPeer(peer record.PeerNode) (bool, error) {
	added := false

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(peerKey(peer.ID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		added = true
		return setJSON(txn, peerKey(peer.ID), peer)
	})
	if err != nil {
		return false, err
	}

	return added, nil
}

// RemovePeer deletes a peer node. A missing peer is signalled with false,
// not an error.
func (s *Store) RemovePeer(id string) (bool, error) {
	removed := false

	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(peerKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		removed = true
		return txn.Delete(peerKey(id))
	})
	if err != nil {
		return false, err
	}

	return removed, nil
}

// Peers returns every known peer node.
func (s *Store) Peers() ([]record.PeerNode, error) {
	var peers []record.PeerNode

	err := s.db.View(func(txn *badger.Txn) error {
		return forEach(txn, peerPrefix, func(data []byte) error {
			var peer record.PeerNode
			if err := json.Unmarshal(data, &peer); err != nil {
				return err
			}
			peers = append(peers, peer)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return peers, nil
}

// =============================================================================

// blockKey encodes the index big-endian so badger's lexicographic iteration
// yields blocks in chain order.
func blockKey(index uint64) []byte {
	key := make([]byte, len(blockPrefix)+8)
	copy(key, blockPrefix)
	binary.BigEndian.PutUint64(key[len(blockPrefix):], index)
	return key
}

func txKey(signature string) []byte {
	return []byte(txPrefix + signature)
}

func peerKey(id string) []byte {
	return []byte(peerPrefix + id)
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func forEach(txn *badger.Txn, prefix string, fn func(data []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}

	return nil
}

func keysWithPrefix(txn *badger.Txn, prefix string) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}

	return keys, nil
}
