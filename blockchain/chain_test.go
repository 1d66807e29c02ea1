package blockchain

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/eccnet/eccd/chaincfg"
	"github.com/eccnet/eccd/database/ldb"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// chainSetup creates a chain state backed by a throwaway database rooted in
// the test's temporary directory.
func chainSetup(t *testing.T, dbDir string) (*ChainState, *ldb.LevelDB) {
	t.Helper()

	db, err := ldb.NewLevelDB(filepath.Join(dbDir, "metadata"))
	if err != nil {
		t.Fatalf("NewLevelDB: %v", err)
	}

	chain, err := New(&Config{
		DB:           db,
		BlockFileDir: filepath.Join(dbDir, "blocks"),
		ChainParams:  &chaincfg.RegressionNetParams,
		TimeSource:   NewMedianTime(),
	})
	if err != nil {
		db.Close()
		t.Fatalf("blockchain.New: %v", err)
	}
	return chain, db
}

func TestChainStateInit(t *testing.T) {
	dbDir := t.TempDir()
	params := &chaincfg.RegressionNetParams

	chain, db := chainSetup(t, dbDir)

	snapshot := chain.BestSnapshot()
	if snapshot.Height != 0 {
		t.Fatalf("fresh chain height: got %d, want 0", snapshot.Height)
	}
	if snapshot.Hash != *params.GenesisHash {
		t.Fatalf("fresh chain tip: got %v, want %v", snapshot.Hash,
			params.GenesisHash)
	}
	if !chain.HaveBlock(params.GenesisHash) {
		t.Fatal("genesis block not known")
	}
	if !chain.MainChainHasBlock(params.GenesisHash) {
		t.Fatal("genesis block not on the main chain")
	}

	// The genesis block round trips through the flat file store.
	block, err := chain.BlockByHash(params.GenesisHash)
	if err != nil {
		t.Fatalf("BlockByHash: %v", err)
	}
	if *block.Hash() != *params.GenesisHash {
		t.Fatalf("stored genesis hash: got %v, want %v", block.Hash(),
			params.GenesisHash)
	}

	hash, err := chain.BlockHashByHeight(0)
	if err != nil {
		t.Fatalf("BlockHashByHeight: %v", err)
	}
	if *hash != *params.GenesisHash {
		t.Fatalf("hash at height 0: got %v, want %v", hash, params.GenesisHash)
	}

	// Processing the genesis block again is a duplicate.
	_, _, err = chain.ProcessBlock(util.NewBlock(params.GenesisBlock), BFNone)
	if rerr, ok := err.(RuleError); !ok || rerr.Reason != "duplicate" {
		t.Fatalf("duplicate genesis: got %v, want duplicate", err)
	}

	if err := chain.FlushCachedState(); err != nil {
		t.Fatalf("FlushCachedState: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("db.Close: %v", err)
	}

	// Reopening loads the same state back through the stored index.
	chain, db = chainSetup(t, dbDir)
	defer db.Close()

	snapshot = chain.BestSnapshot()
	if snapshot.Height != 0 || snapshot.Hash != *params.GenesisHash {
		t.Fatalf("reloaded chain tip: got (%d, %v), want (0, %v)",
			snapshot.Height, snapshot.Hash, params.GenesisHash)
	}
}

func TestProcessBlockOrphan(t *testing.T) {
	chain, db := chainSetup(t, t.TempDir())
	defer db.Close()

	// A well formed block whose parent is unknown.
	coinbase := wire.NewMsgTx(1)
	coinbase.Time = 1393221660
	coinbase.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff},
		[]byte{0x04, 0x31, 0x32, 0x33}))
	coinbase.AddTxOut(wire.NewTxOut(0, []byte{0x51}))

	unknownParent := chainhash.Hash{
		0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab,
		0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab,
		0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab,
		0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab, 0xab,
	}
	msgBlock := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  unknownParent,
			MerkleRoot: coinbase.TxHash(),
			Timestamp:  time.Unix(1393221660, 0),
			Bits:       0x207fffff,
			Nonce:      1,
		},
		Transactions: []*wire.MsgTx{coinbase},
	}
	block := util.NewBlock(msgBlock)

	isMainChain, isOrphan, err := chain.ProcessBlock(block, BFNone)
	if err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}
	if isMainChain || !isOrphan {
		t.Fatalf("orphan block: got (%v, %v), want (false, true)",
			isMainChain, isOrphan)
	}

	if !chain.IsKnownOrphan(block.Hash()) {
		t.Fatal("block missing from the orphan pool")
	}
	if root := chain.GetOrphanRoot(block.Hash()); *root != *block.Hash() {
		t.Fatalf("orphan root: got %v, want %v", root, block.Hash())
	}

	// Processing the same orphan again is a duplicate.
	_, _, err = chain.ProcessBlock(block, BFNone)
	if rerr, ok := err.(RuleError); !ok || rerr.Reason != "duplicate" {
		t.Fatalf("duplicate orphan: got %v, want duplicate", err)
	}
}

func TestBetterCandidate(t *testing.T) {
	tests := []struct {
		name   string
		a, b   *blockNode
		better bool
	}{
		{
			"more work wins",
			&blockNode{workSum: big.NewInt(10), sequenceNum: 5},
			&blockNode{workSum: big.NewInt(9), sequenceNum: 1},
			true,
		},
		{
			"less work loses",
			&blockNode{workSum: big.NewInt(9), sequenceNum: 1},
			&blockNode{workSum: big.NewInt(10), sequenceNum: 5},
			false,
		},
		{
			"work tie resolves to the earlier arrival",
			&blockNode{workSum: big.NewInt(10), sequenceNum: 1},
			&blockNode{workSum: big.NewInt(10), sequenceNum: 2},
			true,
		},
		{
			"work tie never favors the later arrival",
			&blockNode{workSum: big.NewInt(10), sequenceNum: 2},
			&blockNode{workSum: big.NewInt(10), sequenceNum: 1},
			false,
		},
	}

	for _, test := range tests {
		if got := betterCandidate(test.a, test.b); got != test.better {
			t.Errorf("%s: got %v, want %v", test.name, got, test.better)
		}
	}
}

func TestUncacheReleasesEntries(t *testing.T) {
	chain, db := chainSetup(t, t.TempDir())
	defer db.Close()

	// Fetching an unknown output caches a known-missing marker.
	outPoint := wire.OutPoint{Hash: chainhash.Hash{0x05}, Index: 0}
	if _, err := chain.utxoCache.fetchEntry(outPoint); err != nil {
		t.Fatalf("fetchEntry: %v", err)
	}
	if _, ok := chain.utxoCache.cachedEntries[outPoint]; !ok {
		t.Fatal("missing output was not cached")
	}

	// Releasing the spender of that output drops the marker again.
	spender := wire.NewMsgTx(1)
	spender.AddTxIn(wire.NewTxIn(&outPoint, []byte{0x51}))
	spender.AddTxOut(wire.NewTxOut(util.SatoshiPerCoin, []byte{0x51}))
	chain.Uncache(util.NewTx(spender))
	if _, ok := chain.utxoCache.cachedEntries[outPoint]; ok {
		t.Fatal("cache entry survived Uncache")
	}
}
