package record

import (
	"github.com/robinjongeneel23/blockchain/foundation/ledger/merkle"
)

// EmptyMerkleRoot is the sentinel digest committed by a block with no
// transactions.
const EmptyMerkleRoot = zeroHash

// MerkleRoot commits the ordered list of transactions to a single digest.
// The input order is preserved as-is: two nodes holding the same set in a
// different order compute different roots.
func MerkleRoot(txs []Transaction) (string, error) {
	if len(txs) == 0 {
		return EmptyMerkleRoot, nil
	}

	tree, err := merkle.NewTree(txs)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}
