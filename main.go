// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/eccnet/eccd/blockchain"
	"github.com/eccnet/eccd/config"
	"github.com/eccnet/eccd/database/ldb"
	"github.com/eccnet/eccd/mempool"
	"github.com/eccnet/eccd/signal"
	"github.com/eccnet/eccd/util"
	"github.com/eccnet/eccd/version"
)

const (
	// metadataDirname is the subdirectory of the data dir holding the
	// leveldb metadata store.
	metadataDirname = "metadata"

	// blocksDirname is the subdirectory of the data dir holding the flat
	// block and undo files.
	blocksDirname = "blocks"
)

// eccdMain is the real main function for eccd. It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.
func eccdMain() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	log.Infof("Version %s", version.Version())

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := signal.InterruptListener()
	defer log.Info("Shutdown complete")

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return err
	}

	db, err := ldb.NewLevelDB(filepath.Join(cfg.DataDir, metadataDirname))
	if err != nil {
		return err
	}
	defer func() {
		log.Infof("Gracefully shutting down the database...")
		if err := db.Close(); err != nil {
			log.Errorf("Error closing the database: %v", err)
		}
	}()

	if signal.InterruptRequested(interrupt) {
		return nil
	}

	timeSource := blockchain.NewMedianTime()
	chain, err := blockchain.New(&blockchain.Config{
		DB:               db,
		BlockFileDir:     filepath.Join(cfg.DataDir, blocksDirname),
		ChainParams:      cfg.ActiveNetParams,
		TimeSource:       timeSource,
		UtxoCacheMaxSize: uint64(cfg.DBCacheSize) * 1024 * 1024,
	})
	if err != nil {
		return err
	}
	defer func() {
		log.Infof("Flushing chain state...")
		if err := chain.FlushCachedState(); err != nil {
			log.Errorf("Error flushing chain state: %v", err)
		}
	}()

	txPool := mempool.New(&mempool.Config{
		Policy: mempool.Policy{
			AcceptNonStd:         cfg.AcceptNonStd || cfg.ActiveNetParams.RelayNonStdTxs,
			DisableRelayPriority: cfg.NoRelayPriority,
			FreeTxRelayLimit:     cfg.LimitFreeRelay,
			MaxOrphanTxs:         cfg.MaxOrphanTxs,
			MaxOrphanTxSize:      mempool.DefaultMaxOrphanTxSize,
			MaxSigOpsPerTx:       blockchain.MaxBlockSigOps / 5,
			MaxTxVersion:         2,
			LimitAncestorCount:   cfg.LimitAncestors,
			LimitDescendantCount: cfg.LimitDescendant,
			MinRelayTxFee:        util.Amount(cfg.MinRelayTxFee),
			BlockMaxSize:         int64(cfg.BlockMaxSize),
			MempoolExpiry:        cfg.MempoolExpiry,
			MaxMempoolSize:       cfg.MaxMempool * 1024 * 1024,
		},
		ChainParams:      cfg.ActiveNetParams,
		FetchUtxoView:    chain.FetchUtxoView,
		BestHeight:       func() int32 { return chain.BestSnapshot().Height },
		MedianTimePast:   func() time.Time { return chain.BestSnapshot().MedianTime },
		CalcSequenceLock: chain.CalcSequenceLockPoints,
		LockPointsValid:  chain.LockPointsValid,
		Uncache:          chain.Uncache,
		MoneySupply:      func() int64 { return chain.BestSnapshot().MoneySupply },
	})

	// Keep the mempool consistent with the chain.
	chain.Subscribe(func(n *blockchain.Notification) {
		switch n.Type {
		case blockchain.NTBlockConnected:
			block, ok := n.Data.(*util.Block)
			if !ok {
				return
			}
			for _, tx := range block.Transactions()[1:] {
				txPool.RemoveTransaction(tx, false)
				txPool.RemoveDoubleSpends(tx)
				txPool.RemoveOrphan(tx)
				txPool.ProcessOrphans(tx)
			}
		case blockchain.NTBlockDisconnected:
			txPool.RemoveForReorg()
		}
	})

	log.Infof("Chain and mempool initialized on %s (tip height %d)",
		cfg.ActiveNetParams.Name, chain.BestSnapshot().Height)

	// Periodically evict expired mempool entries until shutdown.
	expireTicker := time.NewTicker(time.Minute)
	defer expireTicker.Stop()
	for {
		select {
		case <-expireTicker.C:
			if evicted := txPool.Expire(); evicted > 0 {
				log.Debugf("Evicted %d expired transactions "+
					"from the mempool", evicted)
			}
		case <-interrupt:
			return nil
		}
	}
}

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Work around defer not working after os.Exit()
	if err := eccdMain(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
