// Package record defines the persistent record types of the ledger: blocks,
// transactions, and peer nodes. Constructors reject malformed input at the
// boundary so the business logic never sees loose data.
package record

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Genesis sentinel values. The genesis block is created exactly once, when
// the store holds zero blocks.
const (
	GenesisHash      = "GENESIS"
	GenesisProof     = 100
	GenesisTimestamp = -1
)

// RewardSender is the synthetic sender of a mining reward transaction.
// Reward transactions are exempt from signature verification.
const RewardSender = "MINING"

// =============================================================================

// Block represents a mined group of transactions committed to the chain.
// Immutable once created.
type Block struct {
	Index        uint64  `json:"index"`
	PreviousHash string  `json:"previous_hash"`
	MerkleRoot   string  `json:"merkle_root"`
	Proof        uint64  `json:"proof"`
	Timestamp    float64 `json:"timestamp"`
}

// NewBlock constructs the next block in the chain with the current time.
func NewBlock(index uint64, previousHash string, merkleRoot string, proof uint64) Block {
	return Block{
		Index:        index,
		PreviousHash: previousHash,
		MerkleRoot:   merkleRoot,
		Proof:        proof,
		Timestamp:    float64(time.Now().UTC().UnixNano()) / float64(time.Second),
	}
}

// NewGenesisBlock constructs the sentinel root block of the chain.
func NewGenesisBlock() Block {
	return Block{
		Index:        0,
		PreviousHash: GenesisHash,
		MerkleRoot:   GenesisHash,
		Proof:        GenesisProof,
		Timestamp:    GenesisTimestamp,
	}
}

// ToBlock validates a block received over the wire. It rejects records that
// could never belong to a valid chain.
func ToBlock(index uint64, previousHash string, merkleRoot string, proof uint64, timestamp float64) (Block, error) {
	if previousHash == "" {
		return Block{}, errors.New("block is missing a previous hash")
	}
	if merkleRoot == "" {
		return Block{}, errors.New("block is missing a merkle root")
	}

	b := Block{
		Index:        index,
		PreviousHash: previousHash,
		MerkleRoot:   merkleRoot,
		Proof:        proof,
		Timestamp:    timestamp,
	}

	return b, nil
}

// Hash returns the unique hash for the block.
func (b Block) Hash() string {
	data, err := json.Marshal(b)
	if err != nil {
		return zeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// zeroHash represents a hash code of zeros.
const zeroHash = "0x0000000000000000000000000000000000000000000000000000000000000000"

// =============================================================================

// Transaction is the transactional information between two participants.
// A transaction transitions mined=false to mined=true exactly once, when it
// is included in an accepted block, and is never mutated afterward.
type Transaction struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Signature string  `json:"signature"`
	Amount    float64 `json:"amount"`
	Time      float64 `json:"time"`
	Mined     bool    `json:"mined"`
	Block     *uint64 `json:"block"`
}

// NewTransaction constructs an open transaction from signed wire data.
func NewTransaction(sender string, recipient string, signature string, amount float64, timestamp float64) (Transaction, error) {
	if sender == "" {
		return Transaction{}, errors.New("transaction is missing a sender")
	}
	if recipient == "" {
		return Transaction{}, errors.New("transaction is missing a recipient")
	}
	if signature == "" {
		return Transaction{}, errors.New("transaction is missing a signature")
	}
	if amount < 0 {
		return Transaction{}, fmt.Errorf("transaction amount is negative: %f", amount)
	}

	tx := Transaction{
		Sender:    sender,
		Recipient: recipient,
		Signature: signature,
		Amount:    amount,
		Time:      timestamp,
	}

	return tx, nil
}

// NewRewardTransaction constructs the synthetic transaction crediting the
// miner of the specified block. It is mined immediately.
func NewRewardTransaction(recipient string, reward float64, blockIndex uint64) Transaction {
	idx := blockIndex

	return Transaction{
		Sender:    RewardSender,
		Recipient: recipient,
		Signature: fmt.Sprintf("REWARD FOR MINING BLOCK %d", blockIndex),
		Amount:    reward,
		Time:      float64(time.Now().UTC().UnixNano()) / float64(time.Second),
		Mined:     true,
		Block:     &idx,
	}
}

// IsReward reports whether this is a mining reward transaction.
func (tx Transaction) IsReward() bool {
	return tx.Sender == RewardSender
}

// Payload returns the canonical byte representation of the fields covered by
// the transaction signature: sender, recipient, amount, and time.
func (tx Transaction) Payload() []byte {
	s := tx.Sender + tx.Recipient + formatFloat(tx.Amount) + formatFloat(tx.Time)
	return []byte(s)
}

// Hash implements the merkle Hashable interface. The digest covers the
// canonical field tuple so the merkle root commits to the full transaction.
func (tx Transaction) Hash() ([]byte, error) {
	s := tx.Sender + tx.Recipient + tx.Signature + formatFloat(tx.Amount) + formatFloat(tx.Time)
	hash := sha256.Sum256([]byte(s))
	return hash[:], nil
}

// Equals implements the merkle Hashable interface. Transactions are keyed by
// signature, so equal signatures mean the same transaction.
func (tx Transaction) Equals(other Transaction) bool {
	return tx.Signature == other.Signature
}

// String implements the fmt.Stringer interface for logging.
func (tx Transaction) String() string {
	return fmt.Sprintf("%.8s -> %.8s: %s", tx.Sender, tx.Recipient, formatFloat(tx.Amount))
}

// formatFloat renders amounts and timestamps with the shortest exact
// representation so every node computes identical payload bytes.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// =============================================================================

// PeerNode represents a reachable sibling node in the network, unique by id.
type PeerNode struct {
	ID string `json:"id"`
}

// NewPeerNode validates and constructs a peer record.
func NewPeerNode(id string) (PeerNode, error) {
	if id == "" {
		return PeerNode{}, errors.New("peer node is missing an address")
	}

	return PeerNode{ID: id}, nil
}
