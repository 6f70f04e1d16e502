package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradeoracle/engine/internal/models"
)

// document is the on-disk schema for the JSON file store: a multi-entity
// model of positions, trades, ticks and IV history keyed for direct lookup.
type document struct {
	Positions map[string]*positionRecord `json:"positions"`
	Trades    []models.Trade             `json:"trades"`
	Ticks     map[string][]models.OptionTick `json:"ticks"`
	IVHistory map[string][]ivSample      `json:"iv_history"`
	Portfolio models.Portfolio           `json:"portfolio"`
}

type ivSample struct {
	At time.Time `json:"at"`
	IV float64   `json:"iv"`
}

// positionRecord mirrors models.Position but with the lifecycle state
// pulled out into a plain string, since StateMachine is unexported inside
// models.Position and JSON can't reach it directly.
type positionRecord struct {
	models.Position
	LifecycleState models.PositionState `json:"lifecycle_state"`
}

// JSONStore is a single-file JSON persistence adapter with atomic
// write-temp-fsync-rename durability.
type JSONStore struct {
	mu   sync.RWMutex
	path string
	doc  document
}

// NewJSONStore opens (or creates) the store at path.
func NewJSONStore(path string) (*JSONStore, error) {
	resolved, err := validateFilePath(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating store directory: %v", models.ErrStoreUnavailable, err)
	}
	s := &JSONStore{
		path: resolved,
		doc: document{
			Positions: make(map[string]*positionRecord),
			Ticks:     make(map[string][]models.OptionTick),
			IVHistory: make(map[string][]ivSample),
		},
	}
	if _, err := os.Stat(resolved); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: statting store file: %v", models.ErrStoreUnavailable, err)
	}
	return s, nil
}

// validateFilePath makes path absolute and resolves symlinks in its parent
// directory; it does not restrict the result to any storage root.
func validateFilePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving store path: %w", err)
	}
	dir := filepath.Dir(abs)
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		abs = filepath.Join(resolved, filepath.Base(abs))
	}
	return abs, nil
}

func (s *JSONStore) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: opening store file: %v", models.ErrStoreUnavailable, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("%w: reading store file: %v", models.ErrStoreUnavailable, err)
	}
	if len(data) == 0 {
		return nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: parsing store file: %v", models.ErrStoreUnavailable, err)
	}
	if doc.Positions == nil {
		doc.Positions = make(map[string]*positionRecord)
	}
	if doc.Ticks == nil {
		doc.Ticks = make(map[string][]models.OptionTick)
	}
	if doc.IVHistory == nil {
		doc.IVHistory = make(map[string][]ivSample)
	}
	s.doc = doc
	return nil
}

// save performs an atomic write: write to a tempfile in the same
// directory, fsync it, rename over the destination, then fsync the parent
// directory so the rename itself is durable. Falls back to copy+remove on
// EXDEV (cross-device rename).
func (s *JSONStore) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshaling store: %v", models.ErrStoreUnavailable, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", models.ErrStoreUnavailable, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing temp file: %v", models.ErrStoreUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: chmod temp file: %v", models.ErrStoreUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: fsync temp file: %v", models.ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %v", models.ErrStoreUnavailable, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		if linkErr, ok := err.(*os.LinkError); ok && isCrossDevice(linkErr) {
			if cerr := copyFile(tmpPath, s.path); cerr != nil {
				return fmt.Errorf("%w: cross-device copy fallback: %v", models.ErrStoreUnavailable, cerr)
			}
			os.Remove(tmpPath)
		} else {
			return fmt.Errorf("%w: renaming temp file into place: %v", models.ErrStoreUnavailable, err)
		}
	}

	if dirFile, err := os.Open(dir); err == nil {
		dirFile.Sync()
		dirFile.Close()
	}
	return nil
}

func isCrossDevice(err *os.LinkError) bool {
	return err.Err != nil && err.Err.Error() == "invalid cross-device link"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func (s *JSONStore) AppendTick(_ context.Context, tick models.OptionTick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Ticks[tick.Underlying] = append(s.doc.Ticks[tick.Underlying], tick)
	return s.save()
}

func (s *JSONStore) RecentTicks(_ context.Context, symbol string, n int) ([]models.OptionTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.doc.Ticks[symbol]
	if len(all) <= n {
		out := make([]models.OptionTick, len(all))
		copy(out, all)
		return out, nil
	}
	out := make([]models.OptionTick, n)
	copy(out, all[len(all)-n:])
	return out, nil
}

func (s *JSONStore) RecordIV(_ context.Context, symbol string, at time.Time, iv float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.IVHistory[symbol] = append(s.doc.IVHistory[symbol], ivSample{At: at, IV: iv})
	return s.save()
}

func (s *JSONStore) DailyIVs(_ context.Context, symbol string, from, to time.Time) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []float64
	for _, sample := range s.doc.IVHistory[symbol] {
		if !sample.At.Before(from) && !sample.At.After(to) {
			out = append(out, sample.IV)
		}
	}
	return out, nil
}

func (s *JSONStore) AppendTrade(_ context.Context, trade models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Trades = append(s.doc.Trades, trade)
	return s.save()
}

func (s *JSONStore) AllTrades(_ context.Context) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Trade, len(s.doc.Trades))
	copy(out, s.doc.Trades)
	return out, nil
}

func (s *JSONStore) InsertPosition(_ context.Context, position *models.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.doc.Positions[position.ID]; exists {
		return fmt.Errorf("position %s already exists", position.ID)
	}
	rec := &positionRecord{Position: *position, LifecycleState: position.StateMachine().GetCurrentState()}
	s.doc.Positions[position.ID] = rec
	return s.save()
}

func (s *JSONStore) UpdatePositionMarks(_ context.Context, positionID string, currentPrice, unrealizedPnL decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Positions[positionID]
	if !ok {
		return fmt.Errorf("position %s not found", positionID)
	}
	rec.CurrentPrice = currentPrice
	rec.UnrealizedPnL = unrealizedPnL
	return s.save()
}

func (s *JSONStore) ClosePosition(_ context.Context, positionID string, reason models.ExitReason, closedAt time.Time, finalPnL decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Positions[positionID]
	if !ok {
		return fmt.Errorf("position %s not found", positionID)
	}
	rec.Status = models.StatusClosed
	rec.ExitReason = reason
	rec.ClosedAt = closedAt
	rec.UnrealizedPnL = finalPnL
	rec.LifecycleState = models.StateClosed
	return s.save()
}

func (s *JSONStore) ReducePositionQuantity(_ context.Context, positionID string, closedQty int, realizedPnL decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Positions[positionID]
	if !ok {
		return fmt.Errorf("position %s not found", positionID)
	}
	if closedQty <= 0 || closedQty > rec.Quantity {
		return fmt.Errorf("invalid partial close quantity %d for position %s (have %d)", closedQty, positionID, rec.Quantity)
	}
	rec.Quantity -= closedQty
	s.doc.Portfolio.DailyPnL = s.doc.Portfolio.DailyPnL.Add(realizedPnL)
	return s.save()
}

func (s *JSONStore) MarkMomentumTierOneClosed(_ context.Context, positionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.doc.Positions[positionID]
	if !ok {
		return fmt.Errorf("position %s not found", positionID)
	}
	rec.Tier1Closed = true
	return s.save()
}

func (s *JSONStore) GetPosition(_ context.Context, positionID string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.doc.Positions[positionID]
	if !ok {
		return nil, fmt.Errorf("position %s not found", positionID)
	}
	return clonePosition(rec), nil
}

func (s *JSONStore) OpenPositions(_ context.Context) ([]*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Position
	for _, rec := range s.doc.Positions {
		if rec.Status == models.StatusOpen {
			out = append(out, clonePosition(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// clonePosition deep-copies a stored position record into a fresh
// models.Position so callers can never mutate stored state through the
// returned pointer.
func clonePosition(rec *positionRecord) *models.Position {
	p := rec.Position
	legs := make([]models.Leg, len(rec.Legs))
	copy(legs, rec.Legs)
	p.Legs = legs
	p.SetStateMachine(models.NewStateMachineFromState(rec.LifecycleState))
	return &p
}

func (s *JSONStore) GetPortfolio(_ context.Context) (models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Portfolio, nil
}

func (s *JSONStore) UpdatePortfolio(_ context.Context, mutate func(models.Portfolio) models.Portfolio) (models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Portfolio = mutate(s.doc.Portfolio)
	if err := s.save(); err != nil {
		return models.Portfolio{}, err
	}
	return s.doc.Portfolio, nil
}
