package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"toolvault.org/internal/asset"
	"toolvault.org/internal/audit"
)

// InMemory implements Repository with in-process concurrency safety.
// Suitable for tests and single-node deployments; the Postgres store in
// internal/store/pg is the durable implementation.
type InMemory struct {
	mu            sync.RWMutex
	assets        map[string]*asset.Asset
	codes         map[string]string // code -> asset id
	movements     map[string]*Movement
	calibrations  map[string]*CalibrationRecord
	quarantines   map[string]*QuarantineRecord
	decommissions map[string]*DecommissionRequest
	trail         []audit.Entry
}

// NewInMemory creates an empty repository.
func NewInMemory() *InMemory {
	return &InMemory{
		assets:        make(map[string]*asset.Asset),
		codes:         make(map[string]string),
		movements:     make(map[string]*Movement),
		calibrations:  make(map[string]*CalibrationRecord),
		quarantines:   make(map[string]*QuarantineRecord),
		decommissions: make(map[string]*DecommissionRequest),
	}
}

var _ Repository = (*InMemory)(nil)

func (s *InMemory) GetAsset(ctx context.Context, id string) (asset.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	if !ok {
		return asset.Asset{}, asset.ErrNotFound
	}
	return *a, nil
}

func (s *InMemory) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]asset.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) GetMovement(ctx context.Context, id string) (Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.movements[id]
	if !ok {
		return Movement{}, asset.ErrNotFound
	}
	return *m, nil
}

func (s *InMemory) OpenMovementsForAsset(ctx context.Context, assetID string) ([]Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Movement
	for _, m := range s.movements {
		if m.AssetID == assetID && (m.Status == MovementPending || m.Status == MovementApproved) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) GetCalibration(ctx context.Context, id string) (CalibrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calibrations[id]
	if !ok {
		return CalibrationRecord{}, asset.ErrNotFound
	}
	return *c, nil
}

func (s *InMemory) OpenCalibrationForAsset(ctx context.Context, assetID string) (CalibrationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.calibrations {
		if c.AssetID == assetID && c.Open() {
			return *c, true, nil
		}
	}
	return CalibrationRecord{}, false, nil
}

// LatestCompletedCalibrations returns, per asset, the most recently
// completed record. Input for alert classification.
func (s *InMemory) LatestCompletedCalibrations(ctx context.Context) ([]CalibrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	latest := make(map[string]CalibrationRecord)
	for _, c := range s.calibrations {
		if c.Status != CalibrationCompleted || c.ReturnDate == nil {
			continue
		}
		prev, ok := latest[c.AssetID]
		if !ok || c.ReturnDate.After(*prev.ReturnDate) {
			latest[c.AssetID] = *c
		}
	}
	out := make([]CalibrationRecord, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (s *InMemory) GetQuarantine(ctx context.Context, id string) (QuarantineRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quarantines[id]
	if !ok {
		return QuarantineRecord{}, asset.ErrNotFound
	}
	return *q, nil
}

func (s *InMemory) UnresolvedQuarantineForAsset(ctx context.Context, assetID string) (QuarantineRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, q := range s.quarantines {
		if q.AssetID == assetID && q.Unresolved() {
			return *q, true, nil
		}
	}
	return QuarantineRecord{}, false, nil
}

func (s *InMemory) GetDecommission(ctx context.Context, id string) (DecommissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decommissions[id]
	if !ok {
		return DecommissionRequest{}, asset.ErrNotFound
	}
	return *d, nil
}

func (s *InMemory) OpenDecommissionForAsset(ctx context.Context, assetID string) (DecommissionRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.decommissions {
		if d.AssetID == assetID && d.Open() {
			return *d, true, nil
		}
	}
	return DecommissionRequest{}, false, nil
}

func (s *InMemory) AuditTrail(ctx context.Context, assetID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Entry
	for _, e := range s.trail {
		if assetID == "" || e.AssetID == assetID {
			out = append(out, e)
		}
	}
	return out, nil
}

type casOp struct {
	assetID         string
	expectedVersion uint64
	newStatus       asset.Status
}

// memTx stages writes; nothing touches the store until commit, and commit
// validates every staged operation before applying any of them.
type memTx struct {
	registers     []asset.Asset
	cas           []casOp
	movements     []Movement
	calibrations  []CalibrationRecord
	quarantines   []QuarantineRecord
	decommissions []DecommissionRequest
	audits        []audit.Entry
}

var _ Tx = (*memTx)(nil)

func (t *memTx) RegisterAsset(a asset.Asset) error {
	t.registers = append(t.registers, a)
	return nil
}

func (t *memTx) CompareAndSetStatus(assetID string, expectedVersion uint64, newStatus asset.Status) error {
	t.cas = append(t.cas, casOp{assetID, expectedVersion, newStatus})
	return nil
}

func (t *memTx) PutMovement(m Movement) error {
	t.movements = append(t.movements, m)
	return nil
}

func (t *memTx) PutCalibration(c CalibrationRecord) error {
	t.calibrations = append(t.calibrations, c)
	return nil
}

func (t *memTx) PutQuarantine(q QuarantineRecord) error {
	t.quarantines = append(t.quarantines, q)
	return nil
}

func (t *memTx) PutDecommission(d DecommissionRequest) error {
	t.decommissions = append(t.decommissions, d)
	return nil
}

func (t *memTx) AppendAudit(e audit.Entry) error {
	t.audits = append(t.audits, e)
	return nil
}

func (s *InMemory) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before mutating anything.
	for _, a := range tx.registers {
		if _, exists := s.assets[a.ID]; exists {
			return asset.ErrCodeTaken
		}
		if _, exists := s.codes[a.Code]; exists {
			return asset.ErrCodeTaken
		}
	}
	for _, op := range tx.cas {
		a, ok := s.assets[op.assetID]
		if !ok {
			return asset.ErrNotFound
		}
		if a.Status.Terminal() {
			return asset.ErrRetired
		}
		if a.Version != op.expectedVersion {
			return asset.ErrVersionConflict
		}
	}

	now := time.Now().UTC()
	for _, a := range tx.registers {
		cp := a
		s.assets[cp.ID] = &cp
		s.codes[cp.Code] = cp.ID
	}
	for _, op := range tx.cas {
		a := s.assets[op.assetID]
		a.Status = op.newStatus
		a.Version++
		a.UpdatedAt = now
	}
	for _, m := range tx.movements {
		cp := m
		s.movements[cp.ID] = &cp
	}
	for _, c := range tx.calibrations {
		cp := c
		s.calibrations[cp.ID] = &cp
	}
	for _, q := range tx.quarantines {
		cp := q
		s.quarantines[cp.ID] = &cp
	}
	for _, d := range tx.decommissions {
		cp := d
		s.decommissions[cp.ID] = &cp
	}
	s.trail = append(s.trail, tx.audits...)
	return nil
}
