package chain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/pebble"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/triedb"
)

// ErrGenesisMismatch is returned when the database was initialized with a
// different genesis than the supplied chain spec describes.
var ErrGenesisMismatch = errors.New("genesis hash mismatch")

// LoadChainSpec reads a genesis JSON file into a core.Genesis.
func LoadChainSpec(path string) (*core.Genesis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chain spec: %w", err)
	}
	defer f.Close()

	genesis := new(core.Genesis)
	if err := json.NewDecoder(f).Decode(genesis); err != nil {
		return nil, fmt.Errorf("decode chain spec %s: %w", path, err)
	}
	if genesis.Config == nil {
		return nil, fmt.Errorf("chain spec %s carries no chain config", path)
	}
	return genesis, nil
}

// Init writes the genesis block into the database. Re-running against an
// already initialized database is a no-op when the hashes agree and an error
// when they do not.
func Init(db ethdb.Database, genesis *core.Genesis) (common.Hash, error) {
	want := genesis.ToBlock().Hash()
	if stored := rawdb.ReadCanonicalHash(db, 0); stored != (common.Hash{}) {
		if stored != want {
			return common.Hash{}, fmt.Errorf("%w: database has %s, chain spec wants %s", ErrGenesisMismatch, stored, want)
		}
		log.Info("Genesis already initialized", "hash", stored)
		return stored, nil
	}
	tdb := triedb.NewDatabase(db, triedb.HashDefaults)
	defer tdb.Close()
	_, hash, _, err := core.SetupGenesisBlock(db, tdb, genesis)
	if err != nil {
		return common.Hash{}, fmt.Errorf("write genesis: %w", err)
	}
	log.Info("Genesis initialized", "hash", hash, "chain", genesis.Config.ChainID)
	return hash, nil
}

// OpenDatabase opens (or creates) the node's chain database at the given
// path, ancients alongside.
func OpenDatabase(path string, readonly bool) (ethdb.Database, error) {
	kvdb, err := pebble.New(path, 512, 512, "chaindata", readonly)
	if err != nil {
		return nil, err
	}
	db, err := rawdb.NewDatabaseWithFreezer(kvdb, path+"/ancient", "chaindata", readonly)
	if err != nil {
		kvdb.Close()
		return nil, err
	}
	return db, nil
}
