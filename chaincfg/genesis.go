// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"time"

	"github.com/eccnet/eccd/util/chainhash"
	"github.com/eccnet/eccd/wire"
)

// genesisCoinbaseTx is the coinbase transaction for the genesis blocks for
// the main network and regression test network.
var genesisCoinbaseTx = wire.MsgTx{
	Version: 1,
	Time:    1393221600,
	TxIn: []*wire.TxIn{
		{
			PreviousOutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{},
				Index: 0xffffffff,
			},
			SignatureScript: []byte{
				0x04, 0xff, 0xff, 0x00, 0x1d, 0x01, 0x04, 0x45, /* |.......E| */
				0x54, 0x68, 0x65, 0x20, 0x54, 0x69, 0x6d, 0x65, /* |The Time| */
				0x73, 0x20, 0x32, 0x34, 0x2f, 0x46, 0x65, 0x62, /* |s 24/Feb| */
				0x2f, 0x32, 0x30, 0x31, 0x34, 0x20, 0x43, 0x68, /* |/2014 Ch| */
				0x61, 0x6e, 0x63, 0x65, 0x6c, 0x6c, 0x6f, 0x72, /* |ancellor| */
				0x20, 0x75, 0x72, 0x67, 0x65, 0x64, 0x20, 0x74, /* | urged t| */
				0x6f, 0x20, 0x74, 0x61, 0x6b, 0x65, 0x20, 0x61, /* |o take a| */
				0x63, 0x74, 0x69, 0x6f, 0x6e, 0x20, 0x6f, 0x6e, /* |ction on| */
				0x20, 0x62, 0x61, 0x6e, 0x6b, 0x73, /* | banks| */
			},
			Sequence: 0xffffffff,
		},
	},
	TxOut: []*wire.TxOut{
		{
			Value:    0x00,
			PkScript: []byte{},
		},
	},
	LockTime: 0,
}

// genesisHash is the hash of the first block in the block chain for the main
// network (genesis block).
var genesisHash = chainhash.Hash([chainhash.HashSize]byte{ // Make go vet happy.
	0x8f, 0x73, 0x72, 0xc0, 0xe3, 0x09, 0x9f, 0xa2,
	0xc2, 0xcd, 0xb5, 0x38, 0xeb, 0xb6, 0x2f, 0xa6,
	0x6c, 0x05, 0x8c, 0xc7, 0x8e, 0x5d, 0x1f, 0x53,
	0x77, 0x57, 0x9e, 0x48, 0x0d, 0x00, 0x00, 0x00,
})

// genesisMerkleRoot is the hash of the first transaction in the genesis block
// for the main network.
var genesisMerkleRoot = chainhash.Hash([chainhash.HashSize]byte{ // Make go vet happy.
	0x2a, 0x87, 0xe6, 0x5f, 0x00, 0x9b, 0x37, 0x32,
	0x6b, 0x1f, 0xad, 0x36, 0xff, 0xc4, 0xfc, 0x7a,
	0xcf, 0x6e, 0xd2, 0x71, 0x93, 0x5f, 0x9d, 0x02,
	0x60, 0x86, 0x34, 0x01, 0xee, 0xf2, 0xf2, 0xa3,
})

// genesisBlock defines the genesis block of the block chain which serves as
// the public transaction ledger for the main network.
var genesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:    1,
		PrevBlock:  chainhash.Hash{}, // 000000000000000000000000000000000000000000000000000000000000000000
		MerkleRoot: genesisMerkleRoot,
		Timestamp:  time.Unix(1393221600, 0),
		Bits:       0x1d0fffff,
		Nonce:      576524545,
	},
	Transactions: []*wire.MsgTx{&genesisCoinbaseTx},
	Signature:    nil,
}

// regTestGenesisHash is the hash of the first block in the block chain for the
// regression test network (genesis block).
var regTestGenesisHash = chainhash.Hash([chainhash.HashSize]byte{ // Make go vet happy.
	0xa1, 0x9f, 0xa4, 0x5b, 0x9e, 0x2f, 0xe7, 0xe8,
	0xfa, 0x26, 0xae, 0xd2, 0x34, 0x90, 0x05, 0x1b,
	0xec, 0x74, 0x81, 0x0d, 0x8b, 0x49, 0xf0, 0x75,
	0x50, 0x06, 0x00, 0x9c, 0xf8, 0xca, 0xfb, 0x37,
})

// regTestGenesisMerkleRoot is the hash of the first transaction in the genesis
// block for the regression test network. It is the same as the merkle root
// for the main network.
var regTestGenesisMerkleRoot = genesisMerkleRoot

// regTestGenesisBlock defines the genesis block of the block chain which
// serves as the public transaction ledger for the regression test network.
var regTestGenesisBlock = wire.MsgBlock{
	Header: wire.BlockHeader{
		Version:    1,
		PrevBlock:  chainhash.Hash{}, // 000000000000000000000000000000000000000000000000000000000000000000
		MerkleRoot: regTestGenesisMerkleRoot,
		Timestamp:  time.Unix(1393221600, 0),
		Bits:       0x207fffff,
		Nonce:      1,
	},
	Transactions: []*wire.MsgTx{&genesisCoinbaseTx},
	Signature:    nil,
}
