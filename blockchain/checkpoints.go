// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/eccnet/eccd/chaincfg"
)

// Checkpoints returns a slice of checkpoints (regardless of whether they are
// already known). When there are no checkpoints for the chain, it will return
// nil.
//
// This function is safe for concurrent access.
func (b *ChainState) Checkpoints() []chaincfg.Checkpoint {
	return b.chainParams.Checkpoints
}

// HasCheckpoints returns whether this chain has checkpoints defined.
//
// This function is safe for concurrent access.
func (b *ChainState) HasCheckpoints() bool {
	return len(b.chainParams.Checkpoints) > 0
}

// latestCheckpoint returns the most recent checkpoint (regardless of whether
// it is already known). When there are no defined checkpoints for the active
// chain instance, it will return nil.
func (b *ChainState) latestCheckpoint() *chaincfg.Checkpoint {
	if !b.HasCheckpoints() {
		return nil
	}
	checkpoints := b.chainParams.Checkpoints
	return &checkpoints[len(checkpoints)-1]
}

// LatestCheckpoint returns the most recent checkpoint (regardless of whether
// it is already known).
//
// This function is safe for concurrent access.
func (b *ChainState) LatestCheckpoint() *chaincfg.Checkpoint {
	return b.latestCheckpoint()
}
