package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"affrollup/internal/domain"
	"affrollup/internal/rollup"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"
)

// ArsenalService manages user-owned grouping configurations
type ArsenalService struct {
	repo      domain.ArsenalRepository
	ungrouped rollup.UngroupedStrategy
	logger    *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewArsenalService(repo domain.ArsenalRepository, ungrouped rollup.UngroupedStrategy, logger *logger.Logger, metrics *metrics.Metrics) *ArsenalService {
	return &ArsenalService{
		repo:      repo,
		ungrouped: ungrouped,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// Create validates and stores a new arsenal, assigning ids where missing
func (s *ArsenalService) Create(ctx context.Context, userID string, a domain.Arsenal) (*domain.Arsenal, error) {
	log := s.logger.WithContext(ctx).WithField("user_id", userID)

	if a.ID != "" {
		if _, err := s.repo.Get(ctx, userID, a.ID); err == nil {
			s.metrics.RecordArsenalOperation("create", "conflict")
			return nil, fmt.Errorf("%w: id %q already exists", domain.ErrInvalidArsenal, a.ID)
		} else if !errors.Is(err, domain.ErrArsenalNotFound) {
			return nil, err
		}
	}

	a.UserID = userID
	if err := normalizeArsenal(&a); err != nil {
		s.metrics.RecordArsenalOperation("create", "invalid")
		return nil, err
	}
	now := s.now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := s.persist(ctx, a, false); err != nil {
		s.metrics.RecordArsenalOperation("create", "failed")
		return nil, err
	}

	s.metrics.RecordArsenalOperation("create", "success")
	log.WithFields(map[string]any{
		"arsenal_id": a.ID,
		"groups":     len(a.CustomGroups),
	}).Info("Arsenal created")
	return s.repo.Get(ctx, userID, a.ID)
}

// Update replaces an existing arsenal's definition. Creation time and id are kept.
func (s *ArsenalService) Update(ctx context.Context, userID, id string, a domain.Arsenal) (*domain.Arsenal, error) {
	existing, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		s.metrics.RecordArsenalOperation("update", "not_found")
		return nil, err
	}

	a.ID = id
	a.UserID = userID
	if err := normalizeArsenal(&a); err != nil {
		s.metrics.RecordArsenalOperation("update", "invalid")
		return nil, err
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = s.now().UTC()

	if err := s.persist(ctx, a, existing.IsActive); err != nil {
		s.metrics.RecordArsenalOperation("update", "failed")
		return nil, err
	}

	s.metrics.RecordArsenalOperation("update", "success")
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":    userID,
		"arsenal_id": id,
	}).Info("Arsenal updated")
	return s.repo.Get(ctx, userID, id)
}

func (s *ArsenalService) persist(ctx context.Context, a domain.Arsenal, wasActive bool) error {
	if err := s.repo.Save(ctx, a); err != nil {
		return fmt.Errorf("failed to save arsenal: %w", err)
	}
	if a.IsActive && !wasActive {
		if err := s.repo.Activate(ctx, a.UserID, a.ID); err != nil {
			return fmt.Errorf("failed to activate arsenal: %w", err)
		}
	}
	return nil
}

func (s *ArsenalService) Get(ctx context.Context, userID, id string) (*domain.Arsenal, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *ArsenalService) List(ctx context.Context, userID string) ([]domain.Arsenal, error) {
	return s.repo.List(ctx, userID)
}

func (s *ArsenalService) Delete(ctx context.Context, userID, id string) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		s.metrics.RecordArsenalOperation("delete", "failed")
		return err
	}
	s.metrics.RecordArsenalOperation("delete", "success")
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":    userID,
		"arsenal_id": id,
	}).Info("Arsenal deleted")
	return nil
}

// Activate makes id the user's only active arsenal
func (s *ArsenalService) Activate(ctx context.Context, userID, id string) (*domain.Arsenal, error) {
	if err := s.repo.Activate(ctx, userID, id); err != nil {
		s.metrics.RecordArsenalOperation("activate", "failed")
		return nil, err
	}
	s.metrics.RecordArsenalOperation("activate", "success")
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":    userID,
		"arsenal_id": id,
	}).Info("Arsenal activated")
	return s.repo.Get(ctx, userID, id)
}

// Active returns nil when no arsenal is active
func (s *ArsenalService) Active(ctx context.Context, userID string) (*domain.Arsenal, error) {
	return s.repo.Active(ctx, userID)
}

// Classify previews the grouping of a product name under the active arsenal
func (s *ArsenalService) Classify(ctx context.Context, userID, productName string) (*domain.Classification, error) {
	active, err := s.repo.Active(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active arsenal: %w", err)
	}
	c := rollup.NewResolver(active, s.ungrouped).Classify(productName)
	return &c, nil
}

// Seed creates or replaces arsenals loaded from a definition file
func (s *ArsenalService) Seed(ctx context.Context, userID string, arsenals []domain.Arsenal) error {
	for _, a := range arsenals {
		var err error
		if a.ID != "" {
			if _, getErr := s.repo.Get(ctx, userID, a.ID); getErr == nil {
				_, err = s.Update(ctx, userID, a.ID, a)
			} else {
				_, err = s.Create(ctx, userID, a)
			}
		} else {
			_, err = s.Create(ctx, userID, a)
		}
		if err != nil {
			return fmt.Errorf("seed arsenal %q: %w", a.Name, err)
		}
	}
	s.logger.WithContext(ctx).WithFields(map[string]any{
		"user_id":  userID,
		"arsenals": len(arsenals),
	}).Info("Arsenals seeded")
	return nil
}

// normalizeArsenal validates rules and fills missing ids and rule types
func normalizeArsenal(a *domain.Arsenal) error {
	*a = a.Clone()
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidArsenal)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	groupIDs := make(map[string]struct{}, len(a.CustomGroups))
	for gi := range a.CustomGroups {
		g := &a.CustomGroups[gi]
		g.Name = strings.TrimSpace(g.Name)
		if g.Name == "" {
			return fmt.Errorf("%w: group %d has no name", domain.ErrInvalidArsenal, gi)
		}
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		if _, dup := groupIDs[g.ID]; dup {
			return fmt.Errorf("%w: duplicate group id %q", domain.ErrInvalidArsenal, g.ID)
		}
		groupIDs[g.ID] = struct{}{}

		if err := normalizeRules(g.MatchRules, "group "+g.Name); err != nil {
			return err
		}

		offerIDs := make(map[string]struct{}, len(g.Offers))
		for oi := range g.Offers {
			o := &g.Offers[oi]
			o.Name = strings.TrimSpace(o.Name)
			if o.Name == "" {
				return fmt.Errorf("%w: offer %d of group %q has no name", domain.ErrInvalidArsenal, oi, g.Name)
			}
			if !o.OfferType.IsValid() {
				return fmt.Errorf("%w: offer %q has unknown type %q", domain.ErrInvalidArsenal, o.Name, o.OfferType)
			}
			if o.ID == "" {
				o.ID = uuid.NewString()
			}
			if _, dup := offerIDs[o.ID]; dup {
				return fmt.Errorf("%w: duplicate offer id %q in group %q", domain.ErrInvalidArsenal, o.ID, g.Name)
			}
			offerIDs[o.ID] = struct{}{}

			if err := normalizeRules(o.MatchRules, "offer "+o.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func normalizeRules(rules []domain.MatchRule, owner string) error {
	for i := range rules {
		r := &rules[i]
		if r.Type == "" {
			r.Type = domain.MatchContains
		}
		if !r.Type.IsValid() {
			return fmt.Errorf("%w: %s rule %d has unknown type %q", domain.ErrInvalidArsenal, owner, i, r.Type)
		}
		if strings.TrimSpace(r.Value) == "" {
			return fmt.Errorf("%w: %s rule %d has an empty value", domain.ErrInvalidArsenal, owner, i)
		}
	}
	return nil
}
