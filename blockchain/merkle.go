// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
)

// hashMerkleBranches takes two hashes, treated as the left and right tree
// nodes, and returns the hash of their concatenation. This is a helper
// function used to aid in the generation of a merkle tree.
func hashMerkleBranches(left *chainhash.Hash, right *chainhash.Hash) *chainhash.Hash {
	// Concatenate the left and right nodes.
	var hash [chainhash.HashSize * 2]byte
	copy(hash[:chainhash.HashSize], left[:])
	copy(hash[chainhash.HashSize:], right[:])

	newHash := chainhash.DoubleHashH(hash[:])
	return &newHash
}

// CalcMerkleRoot computes the merkle root of the transactions in the given
// block and reports whether the transaction list is mutated. A mutated list
// repeats a run of transactions in a way that leaves the merkle root
// unchanged (CVE-2012-2459), such blocks must be rejected without marking the
// header permanently invalid.
func CalcMerkleRoot(transactions []*util.Tx) (chainhash.Hash, bool) {
	hashes := make([]chainhash.Hash, len(transactions))
	for i, tx := range transactions {
		hashes[i] = *tx.Hash()
	}
	return calcMerkleRoot(hashes)
}

// calcMerkleRoot reduces the passed leaf hashes level by level. A level with
// an odd number of nodes duplicates its last hash, which is expected and not
// counted as mutation. Two identical sibling hashes anywhere in the tree
// mark the list as mutated.
func calcMerkleRoot(hashes []chainhash.Hash) (chainhash.Hash, bool) {
	if len(hashes) == 0 {
		return chainhash.Hash{}, false
	}

	mutated := false
	for len(hashes) > 1 {
		next := make([]chainhash.Hash, 0, (len(hashes)+1)/2)
		for i := 0; i < len(hashes); i += 2 {
			if i+1 < len(hashes) {
				if hashes[i] == hashes[i+1] {
					mutated = true
				}
				next = append(next, *hashMerkleBranches(&hashes[i], &hashes[i+1]))
			} else {
				next = append(next, *hashMerkleBranches(&hashes[i], &hashes[i]))
			}
		}
		hashes = next
	}

	return hashes[0], mutated
}
