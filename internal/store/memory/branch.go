package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"warungpos/internal/domain"
	"warungpos/internal/store"
	"warungpos/internal/xid"
)

// BranchStore keeps branch records, per-branch stock counts and the transfer
// ledger. It is persisted separately from Store and never shares state with
// it.
type BranchStore struct {
	mu            sync.RWMutex
	branchesByID  map[string]domain.Branch
	stockByBranch map[string]map[string]int
	transfersByID map[string]domain.Transfer
}

func NewBranchStore() *BranchStore {
	return &BranchStore{
		branchesByID:  make(map[string]domain.Branch),
		stockByBranch: make(map[string]map[string]int),
		transfersByID: make(map[string]domain.Transfer),
	}
}

func (s *BranchStore) CreateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch.Name = strings.TrimSpace(branch.Name)
	if branch.Name == "" {
		return nil, store.ErrValidation
	}
	if branch.ID == "" {
		branch.ID = xid.New("br")
	}
	if _, exists := s.branchesByID[branch.ID]; exists {
		return nil, store.ErrValidation
	}
	if branch.Status == "" {
		branch.Status = domain.BranchStatusActive
	}
	if branch.CreatedAt.IsZero() {
		branch.CreatedAt = time.Now().UTC()
	}

	s.branchesByID[branch.ID] = branch
	s.stockByBranch[branch.ID] = make(map[string]int)
	created := branch
	return &created, nil
}

func (s *BranchStore) GetBranch(_ context.Context, id string) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, exists := s.branchesByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyBranch := branch
	return &copyBranch, nil
}

func (s *BranchStore) UpdateBranch(_ context.Context, branch domain.Branch) (*domain.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.branchesByID[branch.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if strings.TrimSpace(branch.Name) == "" {
		return nil, store.ErrValidation
	}
	switch branch.Status {
	case domain.BranchStatusActive, domain.BranchStatusInactive, domain.BranchStatusMaintenance:
	default:
		return nil, fmt.Errorf("%w: unknown branch status %q", store.ErrValidation, branch.Status)
	}
	branch.CreatedAt = existing.CreatedAt

	s.branchesByID[branch.ID] = branch
	updated := branch
	return &updated, nil
}

func (s *BranchStore) DeleteBranch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branchesByID[id]; !exists {
		return store.ErrNotFound
	}
	for _, transfer := range s.transfersByID {
		if transfer.Status != domain.TransferStatusPending && transfer.Status != domain.TransferStatusInTransit {
			continue
		}
		if transfer.FromBranchID == id || transfer.ToBranchID == id {
			return fmt.Errorf("%w: branch %s has open transfers", store.ErrIllegalTransition, id)
		}
	}
	delete(s.branchesByID, id)
	delete(s.stockByBranch, id)
	return nil
}

func (s *BranchStore) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branches := make([]domain.Branch, 0, len(s.branchesByID))
	for _, branch := range s.branchesByID {
		branches = append(branches, branch)
	}
	slices.SortFunc(branches, func(a, b domain.Branch) int {
		return cmpString(a.Name, b.Name)
	})
	return branches, nil
}

func (s *BranchStore) SetBranchStock(_ context.Context, branchID string, productID string, qty int) error {
	if productID == "" || qty < 0 {
		return store.ErrValidation
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.branchesByID[branchID]; !exists {
		return store.ErrNotFound
	}
	stock, ok := s.stockByBranch[branchID]
	if !ok {
		stock = make(map[string]int)
		s.stockByBranch[branchID] = stock
	}
	stock[productID] = qty
	return nil
}

func (s *BranchStore) GetBranchStock(_ context.Context, branchID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.branchesByID[branchID]; !exists {
		return nil, store.ErrNotFound
	}
	stock := s.stockByBranch[branchID]
	result := make(map[string]int, len(stock))
	for productID, qty := range stock {
		result[productID] = qty
	}
	return result, nil
}

func (s *BranchStore) CreateTransfer(_ context.Context, transfer domain.Transfer) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if transfer.ProductID == "" || transfer.Qty < 1 {
		return nil, store.ErrValidation
	}
	if transfer.FromBranchID == transfer.ToBranchID {
		return nil, fmt.Errorf("%w: source and destination branch are the same", store.ErrValidation)
	}
	from, exists := s.branchesByID[transfer.FromBranchID]
	if !exists {
		return nil, fmt.Errorf("%w: branch %s", store.ErrNotFound, transfer.FromBranchID)
	}
	to, exists := s.branchesByID[transfer.ToBranchID]
	if !exists {
		return nil, fmt.Errorf("%w: branch %s", store.ErrNotFound, transfer.ToBranchID)
	}
	if from.Status != domain.BranchStatusActive || to.Status != domain.BranchStatusActive {
		return nil, fmt.Errorf("%w: both branches must be active", store.ErrValidation)
	}
	if transfer.ID == "" {
		transfer.ID = xid.New("tf")
	}
	if transfer.RequestedAt.IsZero() {
		transfer.RequestedAt = time.Now().UTC()
	}
	transfer.Status = domain.TransferStatusPending

	s.transfersByID[transfer.ID] = transfer
	created := transfer
	return &created, nil
}

func (s *BranchStore) GetTransfer(_ context.Context, id string) (*domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transfer, exists := s.transfersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyTransfer := transfer
	return &copyTransfer, nil
}

func (s *BranchStore) ListTransfers(_ context.Context, branchID string, status string, limit int) ([]domain.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transfer, 0, len(s.transfersByID))
	for _, transfer := range s.transfersByID {
		if branchID != "" && transfer.FromBranchID != branchID && transfer.ToBranchID != branchID {
			continue
		}
		if status != "" && transfer.Status != status {
			continue
		}
		result = append(result, transfer)
	}
	slices.SortFunc(result, func(a, b domain.Transfer) int {
		if a.RequestedAt.Equal(b.RequestedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.RequestedAt.After(b.RequestedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ApproveTransfer moves pending -> in_transit and deducts the source branch
// stock. Validation happens before any write.
func (s *BranchStore) ApproveTransfer(_ context.Context, id string, approvedBy string, at time.Time) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, exists := s.transfersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if transfer.Status != domain.TransferStatusPending {
		return nil, fmt.Errorf("%w: cannot approve a %s transfer", store.ErrIllegalTransition, transfer.Status)
	}
	stock := s.stockByBranch[transfer.FromBranchID]
	if stock[transfer.ProductID] < transfer.Qty {
		return nil, fmt.Errorf("%w: branch %s has %d of %s", store.ErrInsufficientStock, transfer.FromBranchID, stock[transfer.ProductID], transfer.ProductID)
	}
	stock[transfer.ProductID] -= transfer.Qty

	transfer.Status = domain.TransferStatusInTransit
	transfer.ApprovedBy = approvedBy
	transfer.ApprovedAt = &at
	s.transfersByID[id] = transfer
	updated := transfer
	return &updated, nil
}

// CompleteTransfer moves in_transit -> completed and credits the destination.
func (s *BranchStore) CompleteTransfer(_ context.Context, id string, completedBy string, at time.Time) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, exists := s.transfersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	if transfer.Status != domain.TransferStatusInTransit {
		return nil, fmt.Errorf("%w: cannot complete a %s transfer", store.ErrIllegalTransition, transfer.Status)
	}
	stock, ok := s.stockByBranch[transfer.ToBranchID]
	if !ok {
		stock = make(map[string]int)
		s.stockByBranch[transfer.ToBranchID] = stock
	}
	stock[transfer.ProductID] += transfer.Qty

	transfer.Status = domain.TransferStatusCompleted
	transfer.CompletedBy = completedBy
	transfer.CompletedAt = &at
	s.transfersByID[id] = transfer
	updated := transfer
	return &updated, nil
}

// CancelTransfer is allowed from pending or in_transit. Cancelling an
// in-transit transfer returns the goods to the source branch.
func (s *BranchStore) CancelTransfer(_ context.Context, id string, reason string, at time.Time) (*domain.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transfer, exists := s.transfersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	switch transfer.Status {
	case domain.TransferStatusPending:
	case domain.TransferStatusInTransit:
		stock, ok := s.stockByBranch[transfer.FromBranchID]
		if !ok {
			stock = make(map[string]int)
			s.stockByBranch[transfer.FromBranchID] = stock
		}
		stock[transfer.ProductID] += transfer.Qty
	default:
		return nil, fmt.Errorf("%w: cannot cancel a %s transfer", store.ErrIllegalTransition, transfer.Status)
	}

	transfer.Status = domain.TransferStatusCancelled
	transfer.CancelReason = reason
	s.transfersByID[id] = transfer
	updated := transfer
	return &updated, nil
}

type branchSnapshotState struct {
	Branches      []domain.Branch           `json:"branches"`
	StockByBranch map[string]map[string]int `json:"stock_by_branch"`
	Transfers     []domain.Transfer         `json:"transfers"`
}

func (s *BranchStore) Snapshot(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := branchSnapshotState{
		Branches:      make([]domain.Branch, 0, len(s.branchesByID)),
		StockByBranch: make(map[string]map[string]int, len(s.stockByBranch)),
		Transfers:     make([]domain.Transfer, 0, len(s.transfersByID)),
	}
	for _, branch := range s.branchesByID {
		state.Branches = append(state.Branches, branch)
	}
	for branchID, stock := range s.stockByBranch {
		dup := make(map[string]int, len(stock))
		for productID, qty := range stock {
			dup[productID] = qty
		}
		state.StockByBranch[branchID] = dup
	}
	for _, transfer := range s.transfersByID {
		state.Transfers = append(state.Transfers, transfer)
	}

	return json.Marshal(state)
}

func (s *BranchStore) Restore(_ context.Context, payload []byte) error {
	var state branchSnapshotState
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("decode branch snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.branchesByID = make(map[string]domain.Branch, len(state.Branches))
	for _, branch := range state.Branches {
		s.branchesByID[branch.ID] = branch
	}
	s.stockByBranch = make(map[string]map[string]int, len(state.StockByBranch))
	for branchID, stock := range state.StockByBranch {
		dup := make(map[string]int, len(stock))
		for productID, qty := range stock {
			dup[productID] = qty
		}
		s.stockByBranch[branchID] = dup
	}
	s.transfersByID = make(map[string]domain.Transfer, len(state.Transfers))
	for _, transfer := range state.Transfers {
		s.transfersByID[transfer.ID] = transfer
	}

	return nil
}
