package market

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"craftledger/core/events"
	"craftledger/core/types"
)

// AutoReleaseWindow is how long, in seconds, a job must sit in pending review
// before the artisan may claim settlement unilaterally. Fixed policy value,
// not configurable per job.
const AutoReleaseWindow int64 = 604800

var errNilState = errors.New("market engine: state not configured")

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
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

// VaultAddress returns the module account that holds escrowed funds. The
// address is derived, not key-controlled, so no external party can spend from
// it directly.
func VaultAddress() [20]byte {
	digest := ethcrypto.Keccak256([]byte("market/escrow-vault"))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr
}

// Engine drives the job lifecycle: guarded status transitions, the escrow
// fund movements accompanying them, and event emission. Every public method
// is one unit of work; the caller commits state only when the method returns
// nil and discards all writes otherwise.
type Engine struct {
	state       engineState
	store       *Store
	registry    RoleProvider
	emitter     events.Emitter
	vault       [20]byte
	nowFn       func() int64
	feeBps      uint32
	feeTreasury [20]byte
}

// NewEngine creates a market engine with a no-op emitter and the derived
// module vault. Callers can override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		vault:   VaultAddress(),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) {
	e.state = state
	e.store = NewStore(state)
}

// SetRegistry configures the role provider consulted before assignment and
// application.
func (e *Engine) SetRegistry(registry RoleProvider) { e.registry = registry }

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

// SetSettlementFee enables the optional platform fee charged at settlement.
// The default fee is zero: the artisan receives the full escrowed amount.
func (e *Engine) SetSettlementFee(bps uint32, treasury [20]byte) error {
	if bps > 10_000 {
		return fmt.Errorf("market: fee bps out of range")
	}
	if bps > 0 && treasury == ([20]byte{}) {
		return fmt.Errorf("market: fee treasury required")
	}
	e.feeBps = bps
	e.feeTreasury = treasury
	return nil
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

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{BalanceCRAFT: big.NewInt(0), BalanceFORGE: big.NewInt(0)}
	}
	if acc.BalanceCRAFT == nil {
		acc.BalanceCRAFT = big.NewInt(0)
	}
	if acc.BalanceFORGE == nil {
		acc.BalanceFORGE = big.NewInt(0)
	}
	return acc
}

func (e *Engine) loadJob(id uint64) (*Job, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	job, ok, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

func (e *Engine) storeJob(job *Job) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.store.Put(job)
}

// transferToken moves value between two ledger accounts. A failed transfer
// leaves both balances untouched within the enclosing unit of work.
func (e *Engine) transferToken(from, to [20]byte, token string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("market: negative transfer amount")
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	switch normalized {
	case "CRAFT":
		if fromAcc.BalanceCRAFT.Cmp(amt) < 0 {
			return ErrInsufficientBalance
		}
		fromAcc.BalanceCRAFT = new(big.Int).Sub(fromAcc.BalanceCRAFT, amt)
		toAcc.BalanceCRAFT = new(big.Int).Add(toAcc.BalanceCRAFT, amt)
	case "FORGE":
		if fromAcc.BalanceFORGE.Cmp(amt) < 0 {
			return ErrInsufficientBalance
		}
		fromAcc.BalanceFORGE = new(big.Int).Sub(fromAcc.BalanceFORGE, amt)
		toAcc.BalanceFORGE = new(big.Int).Add(toAcc.BalanceFORGE, amt)
	default:
		return fmt.Errorf("market: unsupported token %s", token)
	}
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// Initialize records the registry collaborator address. The singleton may be
// written exactly once.
func (e *Engine) Initialize(registry [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if registry == ([20]byte{}) {
		return fmt.Errorf("market: registry address required")
	}
	if _, ok, err := e.store.RegistryAddress(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}
	return e.store.SetRegistryAddress(registry)
}

// RegistryAddress returns the configured registry collaborator address.
func (e *Engine) RegistryAddress() ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	addr, ok, err := e.store.RegistryAddress()
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, ErrNotInitialized
	}
	return addr, nil
}

// candidateProfile runs the registry policy gate for an assignment or
// application candidate.
func (e *Engine) candidateProfile(candidate [20]byte) (*Profile, error) {
	if _, err := e.RegistryAddress(); err != nil {
		return nil, err
	}
	if e.registry == nil {
		return nil, ErrNotInitialized
	}
	profile, ok, err := e.registry.Profile(candidate)
	if err != nil {
		return nil, err
	}
	if !ok || profile == nil {
		return nil, ErrProfileNotFound
	}
	if profile.Role != RoleArtisan || profile.Blacklisted {
		return nil, ErrPolicyViolation
	}
	return profile, nil
}

// CreateJob locks the amount from the finder into the module vault, allocates
// the next job id and persists the open job record.
func (e *Engine) CreateJob(finder [20]byte, token string, amount *big.Int) (*Job, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if finder == ([20]byte{}) {
		return nil, ErrUnauthorized
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := e.transferToken(finder, e.vault, normalized, amt); err != nil {
		return nil, err
	}
	id, err := e.store.AllocateID()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:     id,
		Finder: finder,
		Token:  normalized,
		Amount: amt,
		Status: JobOpen,
	}
	if err := e.storeJob(job); err != nil {
		return nil, err
	}
	e.emit(NewJobCreatedEvent(job))
	return job.Clone(), nil
}

// AssignArtisan binds a registry-verified artisan to an open job. Only the
// job's finder may assign, and only once.
func (e *Engine) AssignArtisan(id uint64, caller, artisan [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != JobOpen {
		return ErrInvalidState
	}
	if caller == ([20]byte{}) {
		return ErrUnauthorized
	}
	if caller != job.Finder {
		return ErrNotOwner
	}
	if _, err := e.candidateProfile(artisan); err != nil {
		return err
	}
	job.Artisan = artisan
	job.Status = JobAssigned
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewJobAssignedEvent(job))
	return nil
}

// ApplyForJob records an application signal from a registry-verified artisan.
// The job record itself is unchanged.
func (e *Engine) ApplyForJob(id uint64, artisan [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != JobOpen {
		return ErrInvalidState
	}
	if artisan == ([20]byte{}) {
		return ErrUnauthorized
	}
	if _, err := e.candidateProfile(artisan); err != nil {
		return err
	}
	e.emit(NewJobApplicationEvent(job, artisan))
	return nil
}

// StartJob moves an assigned job into progress and stamps the start time.
func (e *Engine) StartJob(id uint64, caller [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != JobAssigned {
		return ErrInvalidState
	}
	if caller == ([20]byte{}) {
		return ErrUnauthorized
	}
	if caller != job.Artisan {
		return ErrNotOwner
	}
	job.Status = JobInProgress
	job.StartTime = e.now()
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewJobStartedEvent(job))
	return nil
}

// CompleteJob submits the work for review and stamps the end time, opening
// the auto-release window.
func (e *Engine) CompleteJob(id uint64, caller [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != JobInProgress {
		return ErrInvalidState
	}
	if caller == ([20]byte{}) {
		return ErrUnauthorized
	}
	if caller != job.Artisan {
		return ErrNotOwner
	}
	job.Status = JobPendingReview
	job.EndTime = e.now()
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewJobCompletedEvent(job))
	return nil
}

// CancelJob refunds the full escrowed amount to the finder and finalizes the
// job. Only open jobs can be cancelled.
func (e *Engine) CancelJob(id uint64, caller [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != JobOpen {
		return ErrInvalidState
	}
	if caller == ([20]byte{}) {
		return ErrUnauthorized
	}
	if caller != job.Finder {
		return ErrNotOwner
	}
	if err := e.transferToken(e.vault, job.Finder, job.Token, job.Amount); err != nil {
		return err
	}
	job.Status = JobCancelled
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewJobCancelledEvent(job))
	return nil
}

// AutoReleaseFunds pays the escrowed amount to the artisan once the review
// window has elapsed without the finder acting.
func (e *Engine) AutoReleaseFunds(id uint64, caller [20]byte) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status != JobPendingReview {
		return ErrInvalidState
	}
	if caller == ([20]byte{}) {
		return ErrUnauthorized
	}
	if caller != job.Artisan {
		return ErrNotOwner
	}
	if e.now() <= job.EndTime+AutoReleaseWindow {
		return ErrTimingNotElapsed
	}
	total := cloneBigInt(job.Amount)
	if total.Sign() <= 0 {
		return ErrInvalidAmount
	}
	fee := new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(e.feeBps)))
	fee.Div(fee, big.NewInt(10_000))
	payout := new(big.Int).Sub(total, fee)
	if payout.Sign() > 0 {
		if err := e.transferToken(e.vault, job.Artisan, job.Token, payout); err != nil {
			return err
		}
	}
	if fee.Sign() > 0 {
		if err := e.transferToken(e.vault, e.feeTreasury, job.Token, fee); err != nil {
			return err
		}
	}
	job.Status = JobCompleted
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewFundsReleasedEvent(job, total.String()))
	return nil
}

// ExtendDeadline accumulates advisory time onto the job's deadline. No
// transition currently enforces the deadline; it is recorded for observers.
func (e *Engine) ExtendDeadline(id uint64, caller [20]byte, extra int64) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrInvalidState
	}
	if caller == ([20]byte{}) {
		return ErrUnauthorized
	}
	if caller != job.Finder {
		return ErrNotOwner
	}
	if extra <= 0 {
		return fmt.Errorf("market: extension must be positive")
	}
	job.Deadline += extra
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewDeadlineExtendedEvent(job, extra))
	return nil
}

// IncreaseBudget locks additional collateral from the finder and adds it to
// the escrowed amount. Additive across repeated calls.
func (e *Engine) IncreaseBudget(id uint64, caller [20]byte, added *big.Int) error {
	job, err := e.loadJob(id)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrInvalidState
	}
	if caller == ([20]byte{}) {
		return ErrUnauthorized
	}
	if caller != job.Finder {
		return ErrNotOwner
	}
	amt := cloneBigInt(added)
	if amt.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if err := e.transferToken(job.Finder, e.vault, job.Token, amt); err != nil {
		return err
	}
	job.Amount = new(big.Int).Add(job.Amount, amt)
	if err := e.storeJob(job); err != nil {
		return err
	}
	e.emit(NewBudgetIncreasedEvent(job, amt.String()))
	return nil
}

// GetJob returns a copy of the stored job record.
func (e *Engine) GetJob(id uint64) (*Job, error) {
	job, err := e.loadJob(id)
	if err != nil {
		return nil, err
	}
	return job.Clone(), nil
}
