package market

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"tokenmart/core/events"
	"tokenmart/core/types"
	nativecommon "tokenmart/native/common"
)

var (
	errNilCustody = errors.New("market engine: custody backend not configured")
	errNilPayment = errors.New("market engine: payment token not configured")
	errNilJournal = errors.New("market engine: state journal not configured")
	errNilParty   = errors.New("market engine: operator and vault not configured")
)

const (
	moduleName = "market"
	// marketFeeBps is the operator's cut of every sale in basis points. The
	// floor division leaves any rounding remainder with the seller.
	marketFeeBps int64 = 200
)

// Custody is the asset-ownership collaborator: a registry of unique tokens
// that supports ownership lookups, transfer authorization checks and
// transfers between holders.
type Custody interface {
	OwnerOf(collection [20]byte, tokenID *big.Int) ([20]byte, error)
	IsApproved(owner, operator [20]byte, collection [20]byte, tokenID *big.Int) (bool, error)
	Transfer(from, to [20]byte, collection [20]byte, tokenID *big.Int) error
}

// Payment is the fungible-token collaborator settling purchases. TransferFrom
// draws on the allowance the owner granted to the module.
type Payment interface {
	BalanceOf(addr [20]byte) (*big.Int, error)
	Allowance(owner, spender [20]byte) (*big.Int, error)
	TransferFrom(owner, to [20]byte, amount *big.Int) error
}

// Journal is the transactional scope of a collaborator. The engine snapshots
// every journal an operation can touch before its first side effect, reverts
// on any failure and discards the snapshots once the operation commits, so a
// partially applied operation is never observable. The custody collaborator
// always lives in the engine's wired journal; a payment token may carry a
// journal of its own.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(int)
	DiscardSnapshot(int)
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine owns the listing registry and drives the custody and payment
// collaborators through the list, purchase and delist transitions. All
// state-changing operations are serialized by an in-flight guard: a nested or
// overlapping call fails with ErrReentrantCall instead of observing a
// mid-flight listing.
type Engine struct {
	registry *Registry
	custody  Custody
	payment  Payment
	journal  Journal
	emitter  events.Emitter
	pauses   nativecommon.PauseView
	operator [20]byte
	vault    [20]byte
	nowFn    func() int64

	guardMu  sync.Mutex
	inFlight bool
}

// NewEngine creates a market engine with an empty registry and a no-op
// emitter. Callers wire collaborators via the setters before use.
func NewEngine() *Engine {
	return &Engine{
		registry: NewRegistry(),
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetCustody configures the asset custody backend.
func (e *Engine) SetCustody(c Custody) { e.custody = c }

// SetPayment configures the payment token used to settle purchases.
func (e *Engine) SetPayment(p Payment) { e.payment = p }

// SetJournal configures the snapshotting state journal backing both
// collaborators.
func (e *Engine) SetJournal(j Journal) { e.journal = j }

// SetOperator configures the marketplace operator identity. The operator
// receives the fee leg of every sale and is the only caller allowed to swap
// the payment token.
func (e *Engine) SetOperator(addr [20]byte) { e.operator = addr }

// SetVault configures the module's custody account. Listed assets are held by
// this address until purchased or delisted.
func (e *Engine) SetVault(addr [20]byte) { e.vault = addr }

// SetPauses configures the pause view consulted before every state-changing
// operation.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// settlementScope snapshots every journal an operation can touch. A payment
// collaborator that carries its own journal (one swapped in after boot) is
// snapshotted alongside the engine journal so a mid-settlement failure
// reverts both sides or neither.
type settlementScope struct {
	primary     Journal
	payment     Journal
	primarySnap int
	paymentSnap int
}

func (e *Engine) beginScope() *settlementScope {
	scope := &settlementScope{primary: e.journal}
	if pj, ok := e.payment.(Journal); ok && pj != e.journal {
		scope.payment = pj
	}
	scope.primarySnap = scope.primary.Snapshot()
	if scope.payment != nil {
		scope.paymentSnap = scope.payment.Snapshot()
	}
	return scope
}

func (s *settlementScope) revert() {
	if s.payment != nil {
		s.payment.RevertToSnapshot(s.paymentSnap)
	}
	s.primary.RevertToSnapshot(s.primarySnap)
}

func (s *settlementScope) discard() {
	if s.payment != nil {
		s.payment.DiscardSnapshot(s.paymentSnap)
	}
	s.primary.DiscardSnapshot(s.primarySnap)
}

// journaled reports whether the payment token can be rolled back by this
// engine: it either is the engine's own journal or carries a journal of its
// own.
func (e *Engine) journaled(token Payment) bool {
	if _, ok := token.(Journal); ok {
		return true
	}
	return interface{}(token) == interface{}(e.journal)
}

// begin marks a state-changing operation as in flight. Any call arriving
// while another operation holds the flag is rejected, which closes the
// time-of-check/time-of-use window between reading a listing and removing it.
func (e *Engine) begin() error {
	e.guardMu.Lock()
	defer e.guardMu.Unlock()
	if e.inFlight {
		return ErrReentrantCall
	}
	e.inFlight = true
	return nil
}

func (e *Engine) end() {
	e.guardMu.Lock()
	e.inFlight = false
	e.guardMu.Unlock()
}

func (e *Engine) ensureWired() error {
	if e.custody == nil {
		return errNilCustody
	}
	if e.payment == nil {
		return errNilPayment
	}
	if e.journal == nil {
		return errNilJournal
	}
	if e.operator == ([20]byte{}) || e.vault == ([20]byte{}) {
		return errNilParty
	}
	return nil
}

// GetListing returns a copy of the active listing for the asset, if one
// exists. The read is side-effect-free and never blocks on in-flight
// operations.
func (e *Engine) GetListing(collection [20]byte, tokenID *big.Int) (*Listing, bool) {
	if e == nil || e.registry == nil {
		return nil, false
	}
	return e.registry.Get(collection, tokenID)
}

// List moves the asset into the module vault and records an active listing at
// the asked price. The caller must hold the asset and must have authorized
// the vault to move it. A seller whose asset is already listed cannot list it
// again: the vault, not the seller, holds the asset, so the ownership
// precondition fails.
func (e *Engine) List(collection [20]byte, tokenID *big.Int, price *big.Int, caller [20]byte) (*Listing, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.ensureWired(); err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	owner, err := e.custody.OwnerOf(collection, tokenID)
	if err != nil {
		return nil, err
	}
	if owner != caller {
		return nil, ErrNotOwner
	}
	approved, err := e.custody.IsApproved(caller, e.vault, collection, tokenID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, ErrNotAuthorized
	}
	snap := e.journal.Snapshot()
	if err := e.custody.Transfer(caller, e.vault, collection, tokenID); err != nil {
		e.journal.RevertToSnapshot(snap)
		return nil, fmt.Errorf("%w: %v", ErrCustodyTransfer, err)
	}
	listing := &Listing{
		Collection: collection,
		TokenID:    cloneBigInt(tokenID),
		Seller:     caller,
		Price:      cloneBigInt(price),
		Active:     true,
		CreatedAt:  e.now(),
	}
	if err := e.registry.put(listing); err != nil {
		e.journal.RevertToSnapshot(snap)
		return nil, err
	}
	e.journal.DiscardSnapshot(snap)
	e.emit(NewListedEvent(listing))
	return listing.Clone(), nil
}

// Purchase settles an active listing: the buyer pays the seller their
// proceeds and the operator the fee, then receives the asset from the vault.
// Payment legs run before the asset leaves escrow so a failed payment aborts
// with the listing intact; the registry entry is removed last. Any failure
// reverts the journal, so no partial settlement survives.
func (e *Engine) Purchase(collection [20]byte, tokenID *big.Int, caller [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.ensureWired(); err != nil {
		return err
	}
	listing, ok := e.registry.Get(collection, tokenID)
	if !ok {
		return ErrNotListed
	}
	price := listing.Price
	balance, err := e.payment.BalanceOf(caller)
	if err != nil {
		return err
	}
	if balance == nil || balance.Cmp(price) < 0 {
		return ErrInsufficientBalance
	}
	allowance, err := e.payment.Allowance(caller, e.vault)
	if err != nil {
		return err
	}
	if allowance == nil || allowance.Cmp(price) < 0 {
		return ErrInsufficientAllowance
	}
	fee := new(big.Int).Mul(price, big.NewInt(marketFeeBps))
	fee.Div(fee, big.NewInt(10_000))
	proceeds := new(big.Int).Sub(price, fee)
	scope := e.beginScope()
	if proceeds.Sign() > 0 {
		if err := e.payment.TransferFrom(caller, listing.Seller, proceeds); err != nil {
			scope.revert()
			return fmt.Errorf("%w: %v", ErrProceedsTransfer, err)
		}
	}
	if fee.Sign() > 0 {
		if err := e.payment.TransferFrom(caller, e.operator, fee); err != nil {
			scope.revert()
			return fmt.Errorf("%w: %v", ErrFeeTransfer, err)
		}
	}
	if err := e.custody.Transfer(e.vault, caller, collection, tokenID); err != nil {
		scope.revert()
		return fmt.Errorf("%w: %v", ErrCustodyTransfer, err)
	}
	e.registry.remove(collection, tokenID)
	scope.discard()
	e.emit(NewPurchasedEvent(listing, caller))
	return nil
}

// Delist returns the asset from the vault to its seller and removes the
// listing. Only the original seller may withdraw.
func (e *Engine) Delist(collection [20]byte, tokenID *big.Int, caller [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.ensureWired(); err != nil {
		return err
	}
	listing, ok := e.registry.Get(collection, tokenID)
	if !ok {
		return ErrNotListed
	}
	if listing.Seller != caller {
		return ErrNotSeller
	}
	snap := e.journal.Snapshot()
	if err := e.custody.Transfer(e.vault, caller, collection, tokenID); err != nil {
		e.journal.RevertToSnapshot(snap)
		return fmt.Errorf("%w: %v", ErrCustodyTransfer, err)
	}
	e.registry.remove(collection, tokenID)
	e.journal.DiscardSnapshot(snap)
	e.emit(NewDelistedEvent(listing))
	return nil
}

// SetPaymentToken replaces the payment token used by future purchases. Only
// the operator may call it. The replacement must be revertible by the engine:
// it either shares the engine's journal or carries a journal of its own that
// purchases snapshot alongside it; anything else would let a failed
// settlement leave the payment legs applied. Outstanding listings carry only
// a price, not a currency reference, so swapping the token re-denominates
// them in the new token's smallest unit; operators should drain or re-price
// listings first.
func (e *Engine) SetPaymentToken(token Payment, caller [20]byte) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()
	if caller != e.operator || e.operator == ([20]byte{}) {
		return ErrNotOperator
	}
	if token == nil || !e.journaled(token) {
		return ErrInvalidConfig
	}
	e.payment = token
	return nil
}

// OnAssetReceived acknowledges asset deliveries into the module vault.
// Custody backends that require recipients to accept incoming transfers call
// this before finalising; deposits initiated by the engine's own operations
// are always accepted.
func (e *Engine) OnAssetReceived(operator, from [20]byte, collection [20]byte, tokenID *big.Int) error {
	return nil
}
