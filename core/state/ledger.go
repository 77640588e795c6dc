package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrUnknownAsset         = errors.New("state: unknown asset")
	ErrNotAssetOwner        = errors.New("state: sender does not own asset")
	ErrInsufficientFunds    = errors.New("state: insufficient funds")
	ErrInsufficientApproval = errors.New("state: insufficient allowance")
)

// AssetReceiver is implemented by module accounts that must acknowledge
// incoming asset deliveries before a transfer into them is finalised.
type AssetReceiver interface {
	OnAssetReceived(operator, from [20]byte, collection [20]byte, tokenID *big.Int) error
}

// Ledger is an in-memory account and asset store backing the market engine's
// collaborator interfaces. The fungible side tracks balances and
// spender allowances; the asset side tracks per-token owners, per-token
// approvals and blanket operator approvals. Snapshot and RevertToSnapshot
// provide the transactional scope the engine needs for all-or-nothing
// operations.
type Ledger struct {
	mu sync.Mutex

	balances   map[[20]byte]*big.Int
	allowances map[[20]byte]map[[20]byte]*big.Int

	owners         map[[32]byte][20]byte
	tokenApprovals map[[32]byte][20]byte
	operators      map[[20]byte]map[[20]byte]bool

	module   [20]byte
	receiver AssetReceiver

	snapshots []*ledgerCopy
}

type ledgerCopy struct {
	balances       map[[20]byte]*big.Int
	allowances     map[[20]byte]map[[20]byte]*big.Int
	owners         map[[32]byte][20]byte
	tokenApprovals map[[32]byte][20]byte
	operators      map[[20]byte]map[[20]byte]bool
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:       make(map[[20]byte]*big.Int),
		allowances:     make(map[[20]byte]map[[20]byte]*big.Int),
		owners:         make(map[[32]byte][20]byte),
		tokenApprovals: make(map[[32]byte][20]byte),
		operators:      make(map[[20]byte]map[[20]byte]bool),
	}
}

// SetModuleAccount registers the module account that acts as the spender for
// TransferFrom and, when a receiver is set, must acknowledge asset deliveries
// addressed to it.
func (l *Ledger) SetModuleAccount(addr [20]byte, r AssetReceiver) {
	l.mu.Lock()
	l.module = addr
	l.receiver = r
	l.mu.Unlock()
}

func assetKey(collection [20]byte, tokenID *big.Int) [32]byte {
	id := tokenID
	if id == nil {
		id = big.NewInt(0)
	}
	return ethcrypto.Keccak256Hash(collection[:], id.Bytes())
}

// --- fungible side ---

// Mint credits the account with newly issued payment tokens.
func (l *Ledger) Mint(addr [20]byte, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.balances[addr]
	if !ok {
		current = big.NewInt(0)
	}
	l.balances[addr] = new(big.Int).Add(current, amount)
}

// Approve grants the spender an allowance over the owner's balance.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[[20]byte]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	l.allowances[owner][spender] = new(big.Int).Set(amount)
}

// BalanceOf reports the account's payment token balance.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[addr]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// Allowance reports the spender's remaining allowance over the owner's
// balance.
func (l *Ledger) Allowance(owner, spender [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	granted, ok := l.allowances[owner][spender]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(granted), nil
}

// TransferFrom moves amount from owner to the recipient, drawing on the
// allowance the owner granted to the configured module account.
func (l *Ledger) TransferFrom(owner, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, ok := l.balances[owner]
	if !ok || balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	granted, ok := l.allowances[owner][l.module]
	if !ok || granted.Cmp(amount) < 0 {
		return ErrInsufficientApproval
	}
	l.allowances[owner][l.module] = new(big.Int).Sub(granted, amount)
	l.balances[owner] = new(big.Int).Sub(balance, amount)
	toBalance, ok := l.balances[to]
	if !ok {
		toBalance = big.NewInt(0)
	}
	l.balances[to] = new(big.Int).Add(toBalance, amount)
	return nil
}

// --- asset side ---

// MintAsset records the owner of a newly issued unique asset.
func (l *Ledger) MintAsset(owner [20]byte, collection [20]byte, tokenID *big.Int) {
	l.mu.Lock()
	l.owners[assetKey(collection, tokenID)] = owner
	l.mu.Unlock()
}

// ApproveAsset grants the operator the right to move one specific asset. The
// grant is cleared when the asset is transferred.
func (l *Ledger) ApproveAsset(operator [20]byte, collection [20]byte, tokenID *big.Int) {
	l.mu.Lock()
	l.tokenApprovals[assetKey(collection, tokenID)] = operator
	l.mu.Unlock()
}

// SetApprovalForAll grants or revokes the operator's blanket authorization
// over every asset the owner holds.
func (l *Ledger) SetApprovalForAll(owner, operator [20]byte, approved bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.operators[owner] == nil {
		l.operators[owner] = make(map[[20]byte]bool)
	}
	l.operators[owner][operator] = approved
}

// OwnerOf reports the current holder of the asset.
func (l *Ledger) OwnerOf(collection [20]byte, tokenID *big.Int) ([20]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[assetKey(collection, tokenID)]
	if !ok {
		return [20]byte{}, ErrUnknownAsset
	}
	return owner, nil
}

// IsApproved reports whether the operator may move the specific asset, either
// through a per-token approval or a blanket authorization from the owner.
func (l *Ledger) IsApproved(owner, operator [20]byte, collection [20]byte, tokenID *big.Int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if approved, ok := l.tokenApprovals[assetKey(collection, tokenID)]; ok && approved == operator {
		return true, nil
	}
	return l.operators[owner][operator], nil
}

// Transfer moves the asset from its current holder to the recipient and
// clears any per-token approval. Deliveries into the module account are
// acknowledged through the registered receiver before finalising. Transfer
// does not consult IsApproved: it has no notion of who initiated the move,
// so authorization against the approval tables is the caller's
// responsibility (the market engine checks IsApproved before it escrows).
func (l *Ledger) Transfer(from, to [20]byte, collection [20]byte, tokenID *big.Int) error {
	key := assetKey(collection, tokenID)
	l.mu.Lock()
	owner, ok := l.owners[key]
	if !ok {
		l.mu.Unlock()
		return ErrUnknownAsset
	}
	if owner != from {
		l.mu.Unlock()
		return ErrNotAssetOwner
	}
	if l.receiver == nil || to != l.module {
		l.owners[key] = to
		delete(l.tokenApprovals, key)
		l.mu.Unlock()
		return nil
	}
	receiver := l.receiver
	module := l.module
	l.mu.Unlock()

	if err := receiver.OnAssetReceived(module, from, collection, tokenID); err != nil {
		return fmt.Errorf("state: receiver rejected asset: %w", err)
	}

	// The lock was released for the receiver callback; the asset may have
	// moved in the meantime, so re-verify before writing.
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok = l.owners[key]
	if !ok {
		return ErrUnknownAsset
	}
	if owner != from {
		return ErrNotAssetOwner
	}
	l.owners[key] = to
	delete(l.tokenApprovals, key)
	return nil
}

// --- journal ---

// Snapshot records the current ledger state and returns an identifier that
// can be passed to RevertToSnapshot.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, l.copyLocked())
	return len(l.snapshots) - 1
}

// RevertToSnapshot restores the ledger to the state captured by the snapshot
// and discards it along with any later snapshots. Unknown identifiers are
// ignored; an operation that never snapshotted has nothing to revert.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id >= len(l.snapshots) {
		return
	}
	snap := l.snapshots[id]
	l.balances = snap.balances
	l.allowances = snap.allowances
	l.owners = snap.owners
	l.tokenApprovals = snap.tokenApprovals
	l.operators = snap.operators
	l.snapshots = l.snapshots[:id]
}

// DiscardSnapshot drops the snapshot and any later ones once the surrounding
// operation has committed. Unknown identifiers are ignored.
func (l *Ledger) DiscardSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id >= len(l.snapshots) {
		return
	}
	l.snapshots = l.snapshots[:id]
}

func (l *Ledger) copyLocked() *ledgerCopy {
	cp := &ledgerCopy{
		balances:       make(map[[20]byte]*big.Int, len(l.balances)),
		allowances:     make(map[[20]byte]map[[20]byte]*big.Int, len(l.allowances)),
		owners:         make(map[[32]byte][20]byte, len(l.owners)),
		tokenApprovals: make(map[[32]byte][20]byte, len(l.tokenApprovals)),
		operators:      make(map[[20]byte]map[[20]byte]bool, len(l.operators)),
	}
	for addr, balance := range l.balances {
		cp.balances[addr] = new(big.Int).Set(balance)
	}
	for owner, grants := range l.allowances {
		inner := make(map[[20]byte]*big.Int, len(grants))
		for spender, amount := range grants {
			inner[spender] = new(big.Int).Set(amount)
		}
		cp.allowances[owner] = inner
	}
	for key, owner := range l.owners {
		cp.owners[key] = owner
	}
	for key, operator := range l.tokenApprovals {
		cp.tokenApprovals[key] = operator
	}
	for owner, grants := range l.operators {
		inner := make(map[[20]byte]bool, len(grants))
		for operator, approved := range grants {
			inner[operator] = approved
		}
		cp.operators[owner] = inner
	}
	return cp
}
