package core

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"craftledger/native/market"
	"craftledger/native/registry"
	"craftledger/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

type testNode struct {
	node    *Node
	now     int64
	admin   [20]byte
	finder  [20]byte
	artisan [20]byte
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	tn := &testNode{
		node:    NewNode(storage.NewMemDB()),
		now:     1_700_000_000,
		admin:   newTestAddress(0xAA),
		finder:  newTestAddress(0x11),
		artisan: newTestAddress(0x22),
	}
	tn.node.SetNowFunc(func() int64 { return tn.now })
	tn.node.SetRegistryAdmin(tn.admin)
	if err := tn.node.InitializeMarket(newTestAddress(0xEE)); err != nil {
		t.Fatalf("initialize market: %v", err)
	}
	if err := tn.node.Mint(tn.finder, "CRAFT", big.NewInt(10_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := tn.node.RegisterProfile(tn.artisan, "QmArtisan"); err != nil {
		t.Fatalf("register artisan: %v", err)
	}
	if _, err := tn.node.SetProfileRole(tn.admin, tn.artisan, registry.RoleArtisan); err != nil {
		t.Fatalf("promote artisan: %v", err)
	}
	return tn
}

func (tn *testNode) balance(t *testing.T, addr [20]byte) *big.Int {
	t.Helper()
	account, err := tn.node.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return account.BalanceCRAFT
}

func TestNodeJobLifecycle(t *testing.T) {
	tn := newTestNode(t)

	id, err := tn.node.CreateJob(tn.finder, "CRAFT", big.NewInt(500))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}
	if err := tn.node.AssignArtisan(id, tn.finder, tn.artisan); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := tn.node.StartJob(id, tn.artisan); err != nil {
		t.Fatalf("start: %v", err)
	}
	tn.now += 3_600
	if err := tn.node.CompleteJob(id, tn.artisan); err != nil {
		t.Fatalf("complete: %v", err)
	}
	tn.now += market.AutoReleaseWindow + 1
	if err := tn.node.AutoReleaseFunds(id, tn.artisan); err != nil {
		t.Fatalf("auto release: %v", err)
	}

	job, err := tn.node.GetJob(id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != market.JobCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if got := tn.balance(t, tn.artisan); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected artisan balance 500, got %s", got)
	}
	if got := tn.balance(t, market.VaultAddress()); got.Sign() != 0 {
		t.Fatalf("expected empty vault, got %s", got)
	}
}

func TestNodeFailedOperationLeavesNoTrace(t *testing.T) {
	tn := newTestNode(t)
	id, err := tn.node.CreateJob(tn.finder, "CRAFT", big.NewInt(500))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	eventsBefore := len(tn.node.Events())
	finderBefore := tn.balance(t, tn.finder)

	// The artisan check fails after the status and ownership guards pass, so
	// nothing from this unit of work may commit.
	unknown := newTestAddress(0x99)
	if err := tn.node.AssignArtisan(id, tn.finder, unknown); !errors.Is(err, market.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	job, err := tn.node.GetJob(id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != market.JobOpen || job.HasArtisan() {
		t.Fatalf("failed assignment must not mutate the job: %+v", job)
	}
	if got := tn.balance(t, tn.finder); got.Cmp(finderBefore) != 0 {
		t.Fatalf("failed operation must not move funds, got %s", got)
	}
	if got := len(tn.node.Events()); got != eventsBefore {
		t.Fatalf("failed operation must not publish events, log grew %d -> %d", eventsBefore, got)
	}
}

func TestNodeEventLogOrder(t *testing.T) {
	tn := newTestNode(t)
	id, err := tn.node.CreateJob(tn.finder, "CRAFT", big.NewInt(500))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := tn.node.AssignArtisan(id, tn.finder, tn.artisan); err != nil {
		t.Fatalf("assign: %v", err)
	}

	log := tn.node.Events()
	var marketEvents []string
	for _, evt := range log {
		if evt.Type == market.EventTypeJobCreated || evt.Type == market.EventTypeJobAssigned {
			marketEvents = append(marketEvents, evt.Type)
		}
	}
	want := []string{market.EventTypeJobCreated, market.EventTypeJobAssigned}
	if len(marketEvents) != len(want) {
		t.Fatalf("expected %d market events, got %d", len(want), len(marketEvents))
	}
	for i := range want {
		if marketEvents[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], marketEvents[i])
		}
	}
}

func TestNodeMint(t *testing.T) {
	tn := newTestNode(t)
	addr := newTestAddress(0x55)
	if err := tn.node.Mint(addr, "forge", big.NewInt(75)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	account, err := tn.node.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.BalanceFORGE.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("expected FORGE 75, got %s", account.BalanceFORGE)
	}
	if err := tn.node.Mint(addr, "CRAFT", big.NewInt(0)); !errors.Is(err, market.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := tn.node.Mint(addr, "DOGE", big.NewInt(10)); err == nil {
		t.Fatalf("expected error for unsupported token")
	}
}

func TestNodeSeedGenesisOnce(t *testing.T) {
	node := NewNode(storage.NewMemDB())
	addr := newTestAddress(0x66)
	allocs := []GenesisAllocation{{Address: addr, Token: "CRAFT", Amount: big.NewInt(1_000)}}

	if err := node.SeedGenesis(allocs); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := node.SeedGenesis(allocs); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	account, err := node.GetAccount(addr)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.BalanceCRAFT.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("repeated seeding must not double balances, got %s", account.BalanceCRAFT)
	}
}

func TestNodeSettlementFee(t *testing.T) {
	tn := newTestNode(t)
	treasury := newTestAddress(0x77)
	if err := tn.node.SetSettlementFee(250, treasury); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if err := tn.node.SetSettlementFee(10_001, treasury); err == nil {
		t.Fatalf("expected error for fee above 100%%")
	}

	id, err := tn.node.CreateJob(tn.finder, "CRAFT", big.NewInt(1_000))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := tn.node.AssignArtisan(id, tn.finder, tn.artisan); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := tn.node.StartJob(id, tn.artisan); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := tn.node.CompleteJob(id, tn.artisan); err != nil {
		t.Fatalf("complete: %v", err)
	}
	tn.now += market.AutoReleaseWindow + 1
	if err := tn.node.AutoReleaseFunds(id, tn.artisan); err != nil {
		t.Fatalf("auto release: %v", err)
	}
	if got := tn.balance(t, tn.artisan); got.Cmp(big.NewInt(975)) != 0 {
		t.Fatalf("expected artisan payout 975, got %s", got)
	}
	if got := tn.balance(t, treasury); got.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("expected treasury fee 25, got %s", got)
	}
}

func TestNodeRegistryFlow(t *testing.T) {
	tn := newTestNode(t)
	subject := newTestAddress(0x44)

	if _, err := tn.node.GetProfile(subject); !errors.Is(err, registry.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
	if _, err := tn.node.RegisterProfile(subject, "QmSubject"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := tn.node.RegisterProfile(subject, "QmAgain"); !errors.Is(err, registry.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if _, err := tn.node.UpdateProfileMetadata(subject, "QmUpdated"); err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	if _, err := tn.node.SetProfileVerified(tn.admin, subject, true); err != nil {
		t.Fatalf("verify: %v", err)
	}
	profile, err := tn.node.GetProfile(subject)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if profile.MetadataHash != "QmUpdated" || !profile.Verified {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestNodeBlacklistedArtisanRejected(t *testing.T) {
	tn := newTestNode(t)
	if _, err := tn.node.SetProfileBlacklisted(tn.admin, tn.artisan, true); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	id, err := tn.node.CreateJob(tn.finder, "CRAFT", big.NewInt(100))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := tn.node.AssignArtisan(id, tn.finder, tn.artisan); !errors.Is(err, market.ErrPolicyViolation) {
		t.Fatalf("expected ErrPolicyViolation, got %v", err)
	}
}
