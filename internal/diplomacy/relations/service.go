// Package relations manages the pairwise diplomatic state between guilds.
package relations

import (
	"context"
	"errors"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
	apperrors "github.com/lumalyte/guilds/internal/errors"
)

// Service exposes relation reads and writes. The default state for any pair
// is NONE; expired truces collapse to NONE lazily on read.
type Service struct {
	store storage.RelationStore
	clock func() time.Time
}

// NewService constructs relation use-cases.
func NewService(store storage.RelationStore, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store: store,
		clock: clock,
	}
}

func noneRelation(guildA, guildB string) domain.Relation {
	return domain.Relation{
		GuildA: guildA,
		GuildB: guildB,
		Type:   domain.RelationNone,
	}
}

// Get returns the effective relation for a pair. A past-due truce is removed
// from storage and reported as NONE.
func (s *Service) Get(ctx context.Context, guildA, guildB string) (domain.Relation, error) {
	pairA, pairB, err := domain.PairKey(guildA, guildB)
	if err != nil {
		return domain.Relation{}, err
	}

	relation, err := s.store.GetRelation(ctx, pairA, pairB)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return noneRelation(pairA, pairB), nil
		}
		return domain.Relation{}, apperrors.Wrap(apperrors.CodeUnknown, "get relation", err)
	}

	now := s.clock().UTC()
	if relation.ExpiredAt(now) {
		if _, err := s.store.DeleteRelationIfExpired(ctx, pairA, pairB, now); err != nil {
			return domain.Relation{}, apperrors.Wrap(apperrors.CodeUnknown, "expire relation", err)
		}
		return noneRelation(pairA, pairB), nil
	}
	return relation, nil
}

// Set moves the pair to the desired type. Transitions follow the diplomatic
// matrix; an illegal move fails without writing.
func (s *Service) Set(ctx context.Context, guildA, guildB string, relationType domain.RelationType, expiresAt *time.Time) (domain.Relation, error) {
	current, err := s.Get(ctx, guildA, guildB)
	if err != nil {
		return domain.Relation{}, err
	}

	if current.Type == relationType {
		return domain.Relation{}, apperrors.WithMetadata(apperrors.CodeRelationConflict,
			"the pair already holds this relation", map[string]string{"type": relationType.String()})
	}
	if !domain.ValidRelationChange(current.Type, relationType) {
		return domain.Relation{}, apperrors.WithMetadata(apperrors.CodeRelationInvalidChange,
			"this diplomatic transition is not allowed", map[string]string{
				"from": current.Type.String(),
				"to":   relationType.String(),
			})
	}

	if relationType == domain.RelationNone {
		if _, err := s.Break(ctx, guildA, guildB); err != nil {
			return domain.Relation{}, err
		}
		return noneRelation(current.GuildA, current.GuildB), nil
	}

	relation, err := domain.NewRelation(guildA, guildB, relationType, s.clock().UTC(), expiresAt)
	if err != nil {
		return domain.Relation{}, err
	}
	if err := s.store.UpsertRelation(ctx, relation); err != nil {
		return domain.Relation{}, apperrors.Wrap(apperrors.CodeUnknown, "set relation", err)
	}
	return relation, nil
}

// Break resets the pair to NONE. The bool reports whether anything changed.
func (s *Service) Break(ctx context.Context, guildA, guildB string) (bool, error) {
	current, err := s.Get(ctx, guildA, guildB)
	if err != nil {
		return false, err
	}
	if current.Type == domain.RelationNone {
		return false, nil
	}
	removed, err := s.store.DeleteRelation(ctx, guildA, guildB)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeUnknown, "break relation", err)
	}
	return removed, nil
}

// ListByGuild returns the guild's live relations, excluding expired truces.
func (s *Service) ListByGuild(ctx context.Context, guildID string) ([]domain.Relation, error) {
	relations, err := s.store.ListRelationsByGuild(ctx, guildID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "list relations", err)
	}
	return s.dropExpired(ctx, relations), nil
}

// ListByType returns the guild's live relations of one type.
func (s *Service) ListByType(ctx context.Context, guildID string, relationType domain.RelationType) ([]domain.Relation, error) {
	relations, err := s.store.ListRelationsByType(ctx, guildID, relationType)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "list relations by type", err)
	}
	return s.dropExpired(ctx, relations), nil
}

func (s *Service) dropExpired(ctx context.Context, relations []domain.Relation) []domain.Relation {
	now := s.clock().UTC()
	live := make([]domain.Relation, 0, len(relations))
	for _, relation := range relations {
		if relation.ExpiredAt(now) {
			// Persist the collapse opportunistically; a failure here
			// only delays the cleanup until the next read.
			_, _ = s.store.DeleteRelationIfExpired(ctx, relation.GuildA, relation.GuildB, now)
			continue
		}
		live = append(live, relation)
	}
	return live
}
