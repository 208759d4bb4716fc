package pow_test

import (
	"context"
	"testing"

	"github.com/robinjongeneel23/blockchain/foundation/ledger/pow"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

func Test_SearchAndVerify(t *testing.T) {
	t.Log("Given the need to find and verify a proof of work.")
	{
		w := pow.New(2)

		const previousHash = "0xdeadbeef"
		const merkleRoot = "0xcafef00d"

		proof, err := w.Search(context.Background(), previousHash, merkleRoot)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to find a proof: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to find a proof: %d", success, proof)

		if !w.Verify(previousHash, merkleRoot, proof) {
			t.Errorf("\t%s\tShould be able to verify the found proof.", failed)
		} else {
			t.Logf("\t%s\tShould be able to verify the found proof.", success)
		}

		// The search is monotonic from zero, so every smaller value fails.
		for p := uint64(0); p < proof; p++ {
			if w.Verify(previousHash, merkleRoot, p) {
				t.Fatalf("\t%s\tShould not verify any proof below the found one: %d", failed, p)
			}
		}
		t.Logf("\t%s\tShould not verify any proof below the found one.", success)

		if w.Verify("0xother", merkleRoot, proof) {
			t.Errorf("\t%s\tShould not verify the proof against a different previous hash.", failed)
		} else {
			t.Logf("\t%s\tShould not verify the proof against a different previous hash.", success)
		}
	}
}

func Test_SearchCancellation(t *testing.T) {
	t.Log("Given the need to cancel an in-flight proof search.")
	{
		// A high difficulty keeps the search running long enough for the
		// cancelled context to be observed.
		w := pow.New(16)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := w.Search(ctx, "0xdeadbeef", "0xcafef00d"); err == nil {
			t.Errorf("\t%s\tShould receive an error from a cancelled search.", failed)
		} else {
			t.Logf("\t%s\tShould receive an error from a cancelled search: %v", success, err)
		}
	}
}

func Test_DefaultDifficulty(t *testing.T) {
	t.Log("Given the need to fall back to the default difficulty.")
	{
		w := pow.New(0)

		proof, err := w.Search(context.Background(), "0xdeadbeef", "0xcafef00d")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to find a proof with the default difficulty: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to find a proof with the default difficulty: %d", success, proof)
	}
}
