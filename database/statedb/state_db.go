// Package statedb keeps the ledger view the transaction layer builds
// against: one account leaf per (public key, token) pair, committed in a
// Merkle tree so leaves can be proven against the root.
package statedb

import (
	"encoding/binary"
	"errors"
	"math/big"
	"sync"

	"zkapp-node/common"

	"github.com/iden3/go-merkletree"
	"github.com/iden3/go-merkletree/db"
	"github.com/iden3/go-merkletree/db/memory"
)

const (
	// NLevels is the number of merkle tree levels, which comes from the
	// fact that AccountIdx has 48 bits
	NLevels = 48

	// maxIdxValue is the maximum value that AccountIdx can have (48
	// bits: maxIdxValue=2**48-1)
	maxIdxValue = 0xffffffffffff

	// idxBytesLen is the byte length of a serialized AccountIdx
	idxBytesLen = 6
)

var (
	// ErrAccountAlreadyExists is used when CreateAccount is called and
	// the account already exists
	ErrAccountAlreadyExists = errors.New("cannot create account, account already exists")
	// ErrAccountNotFound is used when the account does not exist in the
	// ledger
	ErrAccountNotFound = errors.New("account not found")
	// ErrIdxOverflow is used when the next account index does not fit in
	// 48 bits
	ErrIdxOverflow = errors.New("account idx overflow, max value: 2**48 -1")

	// PrefixKeyMT is the key prefix for the merkle tree nodes in the db
	PrefixKeyMT = []byte("m:")
	// PrefixKeyAccHash is the key prefix mapping a leaf hash to its
	// packed account
	PrefixKeyAccHash = []byte("accHash:")
	// PrefixKeyIdx is the key prefix mapping an account idx to its
	// current leaf hash
	PrefixKeyIdx = []byte("accIdx:")
	// PrefixKeyLeafKey is the key prefix mapping a (public key, token)
	// leaf key to its account idx
	PrefixKeyLeafKey = []byte("leafKey:")
	// keyLastIdx holds the last assigned account idx
	keyLastIdx = []byte("lastIdx")
)

// AccountIdx is the position of an account leaf in the tree, assigned
// sequentially at creation
type AccountIdx uint64

// Bytes returns a byte array representing the AccountIdx
func (idx AccountIdx) Bytes() ([6]byte, error) {
	if idx > maxIdxValue {
		return [6]byte{}, common.Wrap(ErrIdxOverflow)
	}
	var idxBytes [8]byte
	binary.BigEndian.PutUint64(idxBytes[:], uint64(idx))
	var b [6]byte
	copy(b[:], idxBytes[2:])
	return b, nil
}

// BigInt returns a *big.Int representing the AccountIdx
func (idx AccountIdx) BigInt() *big.Int {
	return big.NewInt(int64(idx))
}

func idxFromBytes(b []byte) AccountIdx {
	var idxBytes [8]byte
	copy(idxBytes[2:], b[:idxBytesLen])
	return AccountIdx(binary.BigEndian.Uint64(idxBytes[:]))
}

// StateDB is the ledger with its integrated account Merkle tree. All
// mutations go through a single lock; reads share it.
type StateDB struct {
	mu          sync.RWMutex
	db          db.Storage
	AccountTree *merkletree.MerkleTree
}

// NewStateDB initializes an empty in-memory StateDB
func NewStateDB() (*StateDB, error) {
	sto := memory.NewMemoryStorage()
	mt, err := merkletree.NewMerkleTree(sto.WithPrefix(PrefixKeyMT), NLevels)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return &StateDB{db: sto, AccountTree: mt}, nil
}

// Root returns the current commitment of the whole ledger
func (s *StateDB) Root() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.AccountTree.Root().BigInt()
}

// AccountCount returns how many account leaves the ledger holds
func (s *StateDB) AccountCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last, err := s.db.Get(keyLastIdx)
	if common.Unwrap(err) == db.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, common.Wrap(err)
	}
	return int64(idxFromBytes(last)), nil
}

func (s *StateDB) nextIdx() (AccountIdx, error) {
	last, err := s.db.Get(keyLastIdx)
	if common.Unwrap(err) == db.ErrNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, common.Wrap(err)
	}
	idx := idxFromBytes(last) + 1
	if idx > maxIdxValue {
		return 0, common.Wrap(ErrIdxOverflow)
	}
	return idx, nil
}

// CreateAccount adds a new account leaf to the ledger, assigning it the next
// free idx, and returns the Circom processor proof of the tree insertion
func (s *StateDB) CreateAccount(account *common.Account) (*merkletree.CircomProcessorProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	leafKey := account.LeafKey()
	if _, err := s.db.Get(append(PrefixKeyLeafKey, leafKey.Bytes()...)); common.Unwrap(err) != db.ErrNotFound {
		if err == nil {
			return nil, common.Wrap(ErrAccountAlreadyExists)
		}
		return nil, common.Wrap(err)
	}
	idx, err := s.nextIdx()
	if err != nil {
		return nil, err
	}
	v, err := s.putAccount(idx, account)
	if err != nil {
		return nil, err
	}
	idxBytes, err := idx.Bytes()
	if err != nil {
		return nil, err
	}
	tx, err := s.db.NewTx()
	if err != nil {
		return nil, common.Wrap(err)
	}
	if err := tx.Put(append(PrefixKeyLeafKey, leafKey.Bytes()...), idxBytes[:]); err != nil {
		return nil, common.Wrap(err)
	}
	if err := tx.Put(keyLastIdx, idxBytes[:]); err != nil {
		return nil, common.Wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, common.Wrap(err)
	}
	proof, err := s.AccountTree.AddAndGetCircomProof(idx.BigInt(), v)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return proof, nil
}

// UpdateAccount overwrites an existing account leaf and updates the tree
func (s *StateDB) UpdateAccount(account *common.Account) (*merkletree.CircomProcessorProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.idxByLeafKey(account.LeafKey())
	if err != nil {
		return nil, err
	}
	v, err := s.putAccount(idx, account)
	if err != nil {
		return nil, err
	}
	proof, err := s.AccountTree.Update(idx.BigInt(), v)
	if err != nil {
		return nil, common.Wrap(err)
	}
	return proof, nil
}

// putAccount stores the packed leaf under its hash and points the idx at it
func (s *StateDB) putAccount(idx AccountIdx, account *common.Account) (*big.Int, error) {
	v, err := account.HashValue()
	if err != nil {
		return nil, err
	}
	accountBytes, err := account.Bytes()
	if err != nil {
		return nil, err
	}
	idxBytes, err := idx.Bytes()
	if err != nil {
		return nil, err
	}
	tx, err := s.db.NewTx()
	if err != nil {
		return nil, common.Wrap(err)
	}
	if err := tx.Put(append(PrefixKeyAccHash, v.Bytes()...), accountBytes[:]); err != nil {
		return nil, common.Wrap(err)
	}
	if err := tx.Put(append(PrefixKeyIdx, idxBytes[:]...), v.Bytes()); err != nil {
		return nil, common.Wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, common.Wrap(err)
	}
	return v, nil
}

func (s *StateDB) idxByLeafKey(leafKey *big.Int) (AccountIdx, error) {
	b, err := s.db.Get(append(PrefixKeyLeafKey, leafKey.Bytes()...))
	if common.Unwrap(err) == db.ErrNotFound {
		return 0, common.Wrap(ErrAccountNotFound)
	}
	if err != nil {
		return 0, common.Wrap(err)
	}
	return idxFromBytes(b), nil
}

// GetAccount reads the current account state for a (public key, token) pair
func (s *StateDB) GetAccount(pk common.PublicKey, tokenID common.TokenID) (*common.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	probe := common.Account{PublicKey: pk, TokenID: tokenID}
	idx, err := s.idxByLeafKey(probe.LeafKey())
	if err != nil {
		return nil, err
	}
	return s.getAccountByIdx(idx)
}

func (s *StateDB) getAccountByIdx(idx AccountIdx) (*common.Account, error) {
	idxBytes, err := idx.Bytes()
	if err != nil {
		return nil, err
	}
	vBytes, err := s.db.Get(append(PrefixKeyIdx, idxBytes[:]...))
	if common.Unwrap(err) == db.ErrNotFound {
		return nil, common.Wrap(ErrAccountNotFound)
	}
	if err != nil {
		return nil, common.Wrap(err)
	}
	accountBytes, err := s.db.Get(append(PrefixKeyAccHash, vBytes...))
	if err != nil {
		return nil, common.Wrap(err)
	}
	var packed [32 * common.NLeafElems]byte
	copy(packed[:], accountBytes)
	return common.AccountFromBytes(packed)
}

// MTGetProof returns the Circom verifier proof of an account leaf against
// the current root
func (s *StateDB) MTGetProof(pk common.PublicKey, tokenID common.TokenID) (*merkletree.CircomVerifierProof, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	probe := common.Account{PublicKey: pk, TokenID: tokenID}
	idx, err := s.idxByLeafKey(probe.LeafKey())
	if err != nil {
		return nil, err
	}
	proof, err := s.AccountTree.GenerateSCVerifierProof(idx.BigInt(), s.AccountTree.Root())
	if err != nil {
		return nil, common.Wrap(err)
	}
	return proof, nil
}
