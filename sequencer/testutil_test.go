package sequencer

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/RGafiyatullin/redstone-sequencer/chain"
)

var (
	testKey, _   = crypto.HexToECDSA("b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291")
	testAddr     = crypto.PubkeyToAddress(testKey.PublicKey)
	testKey2, _  = crypto.HexToECDSA("8a1f9a8f95be41cd7ccb6168179afb4504aefe388d1e14474d32c45c72ce7b7a")
	testAddr2    = crypto.PubkeyToAddress(testKey2.PublicKey)
	testCoinbase = common.HexToAddress("0x4242424242424242424242424242424242424242")

	testGenesisTime = uint64(1000)
)

func u64ptr(v uint64) *uint64 { return &v }

func testChainConfig() *params.ChainConfig {
	return &params.ChainConfig{
		ChainID:                 big.NewInt(901),
		HomesteadBlock:          common.Big0,
		EIP150Block:             common.Big0,
		EIP155Block:             common.Big0,
		EIP158Block:             common.Big0,
		ByzantiumBlock:          common.Big0,
		ConstantinopleBlock:     common.Big0,
		PetersburgBlock:         common.Big0,
		IstanbulBlock:           common.Big0,
		MuirGlacierBlock:        common.Big0,
		BerlinBlock:             common.Big0,
		LondonBlock:             common.Big0,
		ArrowGlacierBlock:       common.Big0,
		GrayGlacierBlock:        common.Big0,
		MergeNetsplitBlock:      common.Big0,
		ShanghaiTime:            u64ptr(0),
		CancunTime:              u64ptr(0),
		BedrockBlock:            common.Big0,
		RegolithTime:            u64ptr(0),
		CanyonTime:              u64ptr(0),
		EcotoneTime:             u64ptr(0),
		TerminalTotalDifficulty: common.Big0,
		Optimism: &params.OptimismConfig{
			EIP1559Elasticity:        6,
			EIP1559Denominator:       50,
			EIP1559DenominatorCanyon: u64ptr(250),
		},
	}
}

func testGenesis() *core.Genesis {
	return &core.Genesis{
		Config:     testChainConfig(),
		Timestamp:  testGenesisTime,
		GasLimit:   30_000_000,
		BaseFee:    big.NewInt(params.InitialBaseFee),
		Difficulty: common.Big0,
		Alloc: types.GenesisAlloc{
			testAddr:  {Balance: new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))},
			testAddr2: {Balance: new(big.Int).Mul(big.NewInt(100), big.NewInt(params.Ether))},
		},
	}
}

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	ch, err := chain.New(rawdb.NewMemoryDatabase(), testGenesis())
	require.NoError(t, err)
	t.Cleanup(ch.Close)
	return ch
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(newTestChain(t), []byte("redstone"))
}

// signTransfer signs a plain EIP-1559 value transfer.
func signTransfer(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, to common.Address, value *big.Int) *types.Transaction {
	t.Helper()
	tx, err := types.SignNewTx(key, types.LatestSigner(testChainConfig()), &types.DynamicFeeTx{
		ChainID:   testChainConfig().ChainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(params.GWei),
		GasFeeCap: big.NewInt(2 * params.GWei),
		Gas:       params.TxGas,
		To:        &to,
		Value:     value,
	})
	require.NoError(t, err)
	return tx
}

// depositTx builds a consensus-forced deposit crediting 1 ether to `to`.
func depositTx(sourceHash common.Hash, from, to common.Address) *types.Transaction {
	return types.NewTx(&types.DepositTx{
		SourceHash: sourceHash,
		From:       from,
		To:         &to,
		Mint:       big.NewInt(params.Ether),
		Value:      common.Big0,
		Gas:        210_000,
	})
}

func mustMarshalBinary(t *testing.T, tx *types.Transaction) []byte {
	t.Helper()
	bin, err := tx.MarshalBinary()
	require.NoError(t, err)
	return bin
}
