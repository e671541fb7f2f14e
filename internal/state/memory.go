package state

import (
	"context"
	"sort"
	"sync"

	"github.com/elys-network/rebal/internal/types"
	"github.com/elys-network/rebal/internal/utils"
)

// MemoryStore keeps everything in process. Each basket has its own lock so
// calls on different baskets never serialize.
type MemoryStore struct {
	mu        sync.RWMutex
	baskets   map[string]*types.Basket
	proposals map[string]*types.Proposal
	receipts  map[string][]types.RebalanceReceipt
	nextID    int64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		baskets:   make(map[string]*types.Basket),
		proposals: make(map[string]*types.Proposal),
		receipts:  make(map[string][]types.RebalanceReceipt),
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) CreateBasket(_ context.Context, b *types.Basket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.baskets[b.ID]; ok {
		return ErrBasketExists
	}
	s.baskets[b.ID] = b.Clone()
	return nil
}

func (s *MemoryStore) GetBasket(_ context.Context, id string) (*types.Basket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baskets[id]
	if !ok {
		return nil, types.ErrBasketNotFound
	}
	return b.Clone(), nil
}

func (s *MemoryStore) ListBaskets(_ context.Context) ([]*types.Basket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Basket, 0, len(s.baskets))
	for _, b := range s.baskets {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetProposal(_ context.Context, id string) (*types.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.proposals[id]
	if !ok {
		return nil, types.ErrProposalNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListProposals(_ context.Context, basketID string) ([]*types.Proposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.baskets[basketID]; !ok {
		return nil, types.ErrBasketNotFound
	}
	out := []*types.Proposal{}
	for _, p := range s.proposals {
		if p.BasketID == basketID {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) ListReceipts(_ context.Context, basketID string, limit int) ([]types.RebalanceReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.baskets[basketID]; !ok {
		return nil, types.ErrBasketNotFound
	}
	all := s.receipts[basketID]
	limit = clampLimit(limit)
	out := make([]types.RebalanceReceipt, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (s *MemoryStore) IncentiveSummary(_ context.Context, basketID string) (*IncentiveSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baskets[basketID]
	if !ok {
		return nil, types.ErrBasketNotFound
	}
	sum := &IncentiveSummary{BasketID: basketID, LastRebalanceTs: b.LastRebalanceTs}
	var err error
	for _, r := range s.receipts[basketID] {
		sum.Executions++
		if r.Slashed {
			sum.SlashedExecutions++
		}
		if sum.TotalTokenReward, err = utils.CheckedAdd(sum.TotalTokenReward, r.TokenReward); err != nil {
			return nil, err
		}
		if sum.TotalLamportReward, err = utils.CheckedAdd(sum.TotalLamportReward, r.LamportReward); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

func (s *MemoryStore) Atomically(ctx context.Context, basketID string, fn func(tx Tx) error) error {
	lock := s.basketLock(basketID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := s.GetBasket(ctx, basketID)
	if err != nil {
		return err
	}
	tx := &memoryTx{store: s, basket: b, proposals: map[string]*types.Proposal{}, created: map[string]bool{}}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) basketLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) commit(tx *memoryTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.basketDirty {
		s.baskets[tx.basket.ID] = tx.basket.Clone()
	}
	for id, p := range tx.proposals {
		s.proposals[id] = p.Clone()
	}
	for _, r := range tx.receipts {
		s.nextID++
		r.ID = s.nextID
		s.receipts[r.BasketID] = append(s.receipts[r.BasketID], r)
	}
}

type memoryTx struct {
	store       *MemoryStore
	basket      *types.Basket
	basketDirty bool
	proposals   map[string]*types.Proposal
	created     map[string]bool
	receipts    []types.RebalanceReceipt
}

func (t *memoryTx) Basket() *types.Basket { return t.basket.Clone() }

func (t *memoryTx) SaveBasket(b *types.Basket) error {
	if b.ID != t.basket.ID {
		return types.ErrBasketNotFound
	}
	t.basket = b.Clone()
	t.basketDirty = true
	return nil
}

func (t *memoryTx) Proposal(id string) (*types.Proposal, error) {
	if p, ok := t.proposals[id]; ok {
		return p.Clone(), nil
	}
	t.store.mu.RLock()
	p, ok := t.store.proposals[id]
	t.store.mu.RUnlock()
	if !ok || p.BasketID != t.basket.ID {
		return nil, types.ErrProposalNotFound
	}
	return p.Clone(), nil
}

func (t *memoryTx) CreateProposal(p *types.Proposal) error {
	if p.BasketID != t.basket.ID {
		return types.ErrBasketNotFound
	}
	t.store.mu.RLock()
	_, exists := t.store.proposals[p.ID]
	t.store.mu.RUnlock()
	if exists || t.created[p.ID] {
		return ErrProposalExists
	}
	t.created[p.ID] = true
	t.proposals[p.ID] = p.Clone()
	return nil
}

func (t *memoryTx) SaveProposal(p *types.Proposal) error {
	if _, err := t.Proposal(p.ID); err != nil {
		return err
	}
	t.proposals[p.ID] = p.Clone()
	return nil
}

func (t *memoryTx) SaveReceipt(r *types.RebalanceReceipt) error {
	if r.BasketID != t.basket.ID {
		return types.ErrBasketNotFound
	}
	t.receipts = append(t.receipts, *r)
	return nil
}
