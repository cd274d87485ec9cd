package infrastructure

import (
	"context"
	"sort"
	"sync"

	"affrollup/internal/domain"
	"affrollup/pkg/logger"
)

// implements domain.ArsenalRepository in memory, keyed by user
type ArsenalRepository struct {
	data   map[string]map[string]domain.Arsenal
	active map[string]string
	mutex  sync.RWMutex
	logger *logger.Logger
}

// creates a new in-memory arsenal repository
func NewArsenalRepository(logger *logger.Logger) *ArsenalRepository {
	return &ArsenalRepository{
		data:   make(map[string]map[string]domain.Arsenal),
		active: make(map[string]string),
		logger: logger,
	}
}

func (r *ArsenalRepository) Save(ctx context.Context, arsenal domain.Arsenal) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	byID, ok := r.data[arsenal.UserID]
	if !ok {
		byID = make(map[string]domain.Arsenal)
		r.data[arsenal.UserID] = byID
	}
	arsenal.IsActive = r.active[arsenal.UserID] == arsenal.ID
	byID[arsenal.ID] = arsenal.Clone()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":    arsenal.UserID,
		"arsenal_id": arsenal.ID,
		"groups":     len(arsenal.CustomGroups),
	}).Debug("Stored arsenal in memory")
	return nil
}

func (r *ArsenalRepository) Get(ctx context.Context, userID, id string) (*domain.Arsenal, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	a, ok := r.data[userID][id]
	if !ok {
		return nil, domain.ErrArsenalNotFound
	}
	out := a.Clone()
	return &out, nil
}

// List returns the user's arsenals, oldest first
func (r *ArsenalRepository) List(ctx context.Context, userID string) ([]domain.Arsenal, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]domain.Arsenal, 0, len(r.data[userID]))
	for _, a := range r.data[userID] {
		result = append(result, a.Clone())
	}
	sortArsenals(result)
	return result, nil
}

func (r *ArsenalRepository) Delete(ctx context.Context, userID, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, ok := r.data[userID][id]; !ok {
		return domain.ErrArsenalNotFound
	}
	delete(r.data[userID], id)
	if r.active[userID] == id {
		delete(r.active, userID)
	}
	return nil
}

// Activate marks id active and clears the flag on every other arsenal of the user
func (r *ArsenalRepository) Activate(ctx context.Context, userID, id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	byID := r.data[userID]
	if _, ok := byID[id]; !ok {
		return domain.ErrArsenalNotFound
	}
	for key, a := range byID {
		a.IsActive = key == id
		byID[key] = a
	}
	r.active[userID] = id
	return nil
}

// Active returns nil when the user has no active arsenal
func (r *ArsenalRepository) Active(ctx context.Context, userID string) (*domain.Arsenal, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	id, ok := r.active[userID]
	if !ok {
		return nil, nil
	}
	a := r.data[userID][id].Clone()
	return &a, nil
}

func sortArsenals(list []domain.Arsenal) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
