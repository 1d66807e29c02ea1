// Copyright (c) 2015-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"
	"time"

	"github.com/eccnet/eccd/wire"
)

// chainedNodes returns the specified number of nodes constructed such that
// each subsequent node points to the previous one to create a chain. The
// timestamps are taken from the passed slice, one per node.
func chainedNodes(timestamps []int64) []*blockNode {
	nodes := make([]*blockNode, len(timestamps))
	var parent *blockNode
	for i, ts := range timestamps {
		header := wire.BlockHeader{
			Version:   1,
			Timestamp: time.Unix(ts, 0),
			Bits:      0x207fffff,
			Nonce:     uint32(i),
		}
		if parent != nil {
			header.PrevBlock = parent.hash
		}
		nodes[i] = newBlockNode(&header, parent, false)
		parent = nodes[i]
	}
	return nodes
}

func tip(nodes []*blockNode) *blockNode {
	return nodes[len(nodes)-1]
}

func TestAncestor(t *testing.T) {
	nodes := chainedNodes([]int64{0, 1, 2, 3, 4})

	if got := tip(nodes).Ancestor(2); got != nodes[2] {
		t.Errorf("Ancestor(2): got %v, want %v", got, nodes[2])
	}
	if got := tip(nodes).Ancestor(-1); got != nil {
		t.Errorf("Ancestor(-1): got %v, want nil", got)
	}
	if got := tip(nodes).Ancestor(10); got != nil {
		t.Errorf("Ancestor(10): got %v, want nil", got)
	}
	if got := tip(nodes).RelativeAncestor(1); got != nodes[3] {
		t.Errorf("RelativeAncestor(1): got %v, want %v", got, nodes[3])
	}
}

func TestCalcPastMedianTime(t *testing.T) {
	tests := []struct {
		name       string
		timestamps []int64
		want       int64
	}{
		{"single block", []int64{100}, 100},
		{"odd number of blocks", []int64{10, 30, 20}, 20},
		// With an even number of entries the upper of the two middle
		// entries is the median.
		{"even number of blocks", []int64{1, 2, 3, 4}, 3},
		{"full window", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 5},
		// Only the last eleven blocks participate.
		{"beyond the window", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9,
			10, 11, 12, 13, 14}, 9},
		{"unsorted timestamps", []int64{5, 2, 9, 1, 7}, 5},
	}

	for _, test := range tests {
		nodes := chainedNodes(test.timestamps)
		got := tip(nodes).CalcPastMedianTime().Unix()
		if got != test.want {
			t.Errorf("%s: got %d, want %d", test.name, got, test.want)
		}
	}
}

func TestBlockNodeHeader(t *testing.T) {
	nodes := chainedNodes([]int64{100, 200})

	header := nodes[1].Header()
	if header.PrevBlock != nodes[0].hash {
		t.Errorf("Header prev block: got %v, want %v", header.PrevBlock,
			nodes[0].hash)
	}
	if header.BlockHash() != nodes[1].hash {
		t.Errorf("Header hash: got %v, want %v", header.BlockHash(),
			nodes[1].hash)
	}
	if nodes[1].height != 1 {
		t.Errorf("height: got %d, want 1", nodes[1].height)
	}
	if nodes[1].workSum.Cmp(nodes[0].workSum) <= 0 {
		t.Error("workSum did not accumulate over the parent")
	}
}

func TestBlockStatus(t *testing.T) {
	if !statusDataStored.HaveData() {
		t.Error("statusDataStored does not report data")
	}
	if !(statusValidTransactions | statusDataStored).KnownValid(statusValidTransactions) {
		t.Error("valid transactions status not recognized")
	}
	if (statusValidTransactions | statusValidateFailed).KnownValid(statusValidTransactions) {
		t.Error("failed status reported valid")
	}
	if !(statusInvalidAncestor).KnownInvalid() {
		t.Error("invalid ancestor not reported invalid")
	}
	if statusValidChain.KnownValid(statusValidScripts) {
		t.Error("chain validity satisfied the scripts level")
	}
}
