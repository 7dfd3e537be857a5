package core

import (
	"math/big"
	"sync"
	"time"

	"craftledger/core/events"
	"craftledger/core/state"
	"craftledger/core/types"
	"craftledger/native/market"
	"craftledger/native/registry"
	"craftledger/storage"
)

// Node hosts the marketplace and registry modules over a shared key-value
// ledger. Every public operation runs as one serialized, all-or-nothing unit
// of work: state writes accumulate in an overlay and events in a buffer, and
// both are committed only when the operation succeeds. A single clock value
// is sampled per unit of work.
type Node struct {
	mu      sync.Mutex
	db      storage.Database
	emitter events.Emitter
	nowFn   func() int64

	registryAdmin [20]byte
	feeBps        uint32
	feeTreasury   [20]byte

	eventLog []*types.Event
}

// NewNode creates a node over the provided database with a no-op downstream
// emitter.
func NewNode(db storage.Database) *Node {
	return &Node{
		db:      db,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the downstream subscriber that receives events after
// their unit of work commits.
func (n *Node) SetEmitter(emitter events.Emitter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if emitter == nil {
		n.emitter = events.NoopEmitter{}
		return
	}
	n.emitter = emitter
}

// SetNowFunc overrides the ledger clock. Primarily intended for tests.
func (n *Node) SetNowFunc(now func() int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if now == nil {
		n.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	n.nowFn = now
}

// SetRegistryAdmin configures the bootstrap moderation identity passed to the
// registry engine.
func (n *Node) SetRegistryAdmin(addr [20]byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.registryAdmin = addr
}

// SetSettlementFee configures the optional platform fee applied at
// settlement. Zero basis points (the default) pays artisans in full.
func (n *Node) SetSettlementFee(bps uint32, treasury [20]byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	probe := market.NewEngine()
	if err := probe.SetSettlementFee(bps, treasury); err != nil {
		return err
	}
	n.feeBps = bps
	n.feeTreasury = treasury
	return nil
}

type eventWithPayload interface {
	Event() *types.Event
}

// withUnitOfWork runs fn against an overlay of the committed state and a
// buffered emitter, committing both only when fn returns nil.
func (n *Node) withUnitOfWork(fn func(manager *state.Manager, buf *events.Buffer, now int64) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	overlay := state.NewOverlay(n.db)
	manager := state.NewManager(overlay)
	buf := events.NewBuffer()
	now := n.nowFn()
	if err := fn(manager, buf, now); err != nil {
		return err
	}
	if err := overlay.Commit(); err != nil {
		return err
	}
	for _, evt := range buf.Events() {
		if payload, ok := evt.(eventWithPayload); ok {
			if event := payload.Event(); event != nil {
				n.eventLog = append(n.eventLog, event)
			}
		}
	}
	buf.FlushTo(n.emitter)
	return nil
}

func (n *Node) newRegistryEngine(manager *state.Manager, buf *events.Buffer) *registry.Engine {
	engine := registry.NewEngine()
	engine.SetState(manager)
	engine.SetAdmin(n.registryAdmin)
	engine.SetEmitter(buf)
	return engine
}

func (n *Node) newMarketEngine(manager *state.Manager, buf *events.Buffer, now int64) *market.Engine {
	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(buf)
	engine.SetNowFunc(func() int64 { return now })
	engine.SetRegistry(registryRoleProvider{engine: n.newRegistryEngine(manager, buf)})
	if n.feeBps > 0 {
		// Validated in SetSettlementFee.
		_ = engine.SetSettlementFee(n.feeBps, n.feeTreasury)
	}
	return engine
}

// registryRoleProvider adapts the registry engine to the role gate the
// marketplace consults.
type registryRoleProvider struct {
	engine *registry.Engine
}

func (r registryRoleProvider) Profile(addr [20]byte) (*market.Profile, bool, error) {
	profile, ok, err := r.engine.Profile(addr)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &market.Profile{
		Role:         profile.Role,
		MetadataHash: profile.MetadataHash,
		Verified:     profile.Verified,
		Blacklisted:  profile.Blacklisted,
	}, true, nil
}

// --- Market operations ---

// InitializeMarket records the registry collaborator address; init-once.
func (n *Node) InitializeMarket(registryAddr [20]byte) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		return n.newMarketEngine(m, buf, now).Initialize(registryAddr)
	})
}

// CreateJob locks the amount from the finder and opens a new job.
func (n *Node) CreateJob(finder [20]byte, token string, amount *big.Int) (uint64, error) {
	var id uint64
	err := n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		job, err := n.newMarketEngine(m, buf, now).CreateJob(finder, token, amount)
		if err != nil {
			return err
		}
		id = job.ID
		return nil
	})
	return id, err
}

func (n *Node) AssignArtisan(id uint64, caller, artisan [20]byte) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		return n.newMarketEngine(m, buf, now).AssignArtisan(id, caller, artisan)
	})
}

func (n *Node) ApplyForJob(id uint64, artisan [20]byte) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		return n.newMarketEngine(m, buf, now).ApplyForJob(id, artisan)
	})
}

func (n *Node) StartJob(id uint64, caller [20]byte) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		return n.newMarketEngine(m, buf, now).StartJob(id, caller)
	})
}

func (n *Node) CompleteJob(id uint64, caller [20]byte) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		return n.newMarketEngine(m, buf, now).CompleteJob(id, caller)
	})
}

func (n *Node) CancelJob(id uint64, caller [20]byte) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		return n.newMarketEngine(m, buf, now).CancelJob(id, caller)
	})
}

func (n *Node) AutoReleaseFunds(id uint64, caller [20]byte) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		return n.newMarketEngine(m, buf, now).AutoReleaseFunds(id, caller)
	})
}

func (n *Node) ExtendDeadline(id uint64, caller [20]byte, extra int64) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		return n.newMarketEngine(m, buf, now).ExtendDeadline(id, caller, extra)
	})
}

func (n *Node) IncreaseBudget(id uint64, caller [20]byte, added *big.Int) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		return n.newMarketEngine(m, buf, now).IncreaseBudget(id, caller, added)
	})
}

// GetJob returns a copy of the stored job record.
func (n *Node) GetJob(id uint64) (*market.Job, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	manager := state.NewManager(n.db)
	job, ok, err := market.NewStore(manager).Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, market.ErrJobNotFound
	}
	return job, nil
}

// --- Registry operations ---

func (n *Node) RegisterProfile(caller [20]byte, metadataHash string) (*registry.Profile, error) {
	var profile *registry.Profile
	err := n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		var err error
		profile, err = n.newRegistryEngine(m, buf).Register(caller, metadataHash)
		return err
	})
	return profile, err
}

func (n *Node) UpdateProfileMetadata(caller [20]byte, newHash string) (*registry.Profile, error) {
	var profile *registry.Profile
	err := n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		var err error
		profile, err = n.newRegistryEngine(m, buf).UpdateMetadata(caller, newHash)
		return err
	})
	return profile, err
}

func (n *Node) SetProfileRole(caller, subject [20]byte, role uint8) (*registry.Profile, error) {
	var profile *registry.Profile
	err := n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		var err error
		profile, err = n.newRegistryEngine(m, buf).SetRole(caller, subject, role)
		return err
	})
	return profile, err
}

func (n *Node) SetProfileVerified(caller, subject [20]byte, verified bool) (*registry.Profile, error) {
	var profile *registry.Profile
	err := n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		var err error
		profile, err = n.newRegistryEngine(m, buf).SetVerified(caller, subject, verified)
		return err
	})
	return profile, err
}

func (n *Node) SetProfileBlacklisted(caller, subject [20]byte, blacklisted bool) (*registry.Profile, error) {
	var profile *registry.Profile
	err := n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		var err error
		profile, err = n.newRegistryEngine(m, buf).SetBlacklisted(caller, subject, blacklisted)
		return err
	})
	return profile, err
}

// GetProfile returns the registry profile stored for the identity.
func (n *Node) GetProfile(addr [20]byte) (*registry.Profile, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	manager := state.NewManager(n.db)
	engine := registry.NewEngine()
	engine.SetState(manager)
	profile, ok, err := engine.Profile(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, registry.ErrProfileNotFound
	}
	return profile, nil
}

// --- Accounts ---

// GetAccount returns the ledger account for the address.
func (n *Node) GetAccount(addr [20]byte) (*types.Account, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return state.NewManager(n.db).GetAccount(addr[:])
}

// Mint credits freshly issued tokens to the address. Used for genesis
// allocations; there is no burn counterpart.
func (n *Node) Mint(addr [20]byte, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return market.ErrInvalidAmount
	}
	normalized, err := market.NormalizeToken(token)
	if err != nil {
		return err
	}
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		account, err := m.GetAccount(addr[:])
		if err != nil {
			return err
		}
		switch normalized {
		case "CRAFT":
			account.BalanceCRAFT = new(big.Int).Add(account.BalanceCRAFT, amount)
		case "FORGE":
			account.BalanceFORGE = new(big.Int).Add(account.BalanceFORGE, amount)
		}
		return m.PutAccount(addr[:], account)
	})
}

// GenesisAllocation seeds one account balance on first boot.
type GenesisAllocation struct {
	Address [20]byte
	Token   string
	Amount  *big.Int
}

var genesisSeededKey = []byte("genesis/seeded")

// SeedGenesis applies the allocations once per data directory. Subsequent
// calls are no-ops.
func (n *Node) SeedGenesis(allocations []GenesisAllocation) error {
	return n.withUnitOfWork(func(m *state.Manager, buf *events.Buffer, now int64) error {
		var seeded bool
		ok, err := m.KVGet(genesisSeededKey, &seeded)
		if err != nil {
			return err
		}
		if ok && seeded {
			return nil
		}
		for _, alloc := range allocations {
			normalized, err := market.NormalizeToken(alloc.Token)
			if err != nil {
				return err
			}
			if alloc.Amount == nil || alloc.Amount.Sign() <= 0 {
				return market.ErrInvalidAmount
			}
			account, err := m.GetAccount(alloc.Address[:])
			if err != nil {
				return err
			}
			switch normalized {
			case "CRAFT":
				account.BalanceCRAFT = new(big.Int).Add(account.BalanceCRAFT, alloc.Amount)
			case "FORGE":
				account.BalanceFORGE = new(big.Int).Add(account.BalanceFORGE, alloc.Amount)
			}
			if err := m.PutAccount(alloc.Address[:], account); err != nil {
				return err
			}
		}
		return m.KVPut(genesisSeededKey, true)
	})
}

// Events returns the committed event log in emission order.
func (n *Node) Events() []*types.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	log := make([]*types.Event, len(n.eventLog))
	copy(log, n.eventLog)
	return log
}
