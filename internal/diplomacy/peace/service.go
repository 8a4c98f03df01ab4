// Package peace manages peace negotiation for active wars, including
// offerings settled through escrow.
package peace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/history"
	"github.com/lumalyte/guilds/internal/diplomacy/ports"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
	apperrors "github.com/lumalyte/guilds/internal/errors"
	"github.com/lumalyte/guilds/internal/platform/id"
)

// RelationAfterPeace selects the pair's relation once peace lands.
type RelationAfterPeace string

const (
	// AfterPeaceNone resets the pair to the implicit default.
	AfterPeaceNone RelationAfterPeace = "none"
	// AfterPeaceTruce grants a fresh truce for a configured duration.
	AfterPeaceTruce RelationAfterPeace = "truce"
)

// Config carries the service's tunables.
type Config struct {
	// RelationAfterPeace is the post-peace relation policy.
	RelationAfterPeace RelationAfterPeace
	// TruceDuration applies when RelationAfterPeace is AfterPeaceTruce.
	TruceDuration time.Duration
}

// Validate rejects policy combinations the service cannot honor. Callers
// should fail startup on an error rather than run with an inverted policy.
func (c Config) Validate() error {
	switch c.RelationAfterPeace {
	case "", AfterPeaceNone:
	case AfterPeaceTruce:
		if c.TruceDuration <= 0 {
			return fmt.Errorf("relation-after-peace policy %q needs a positive truce duration", AfterPeaceTruce)
		}
	default:
		return fmt.Errorf("unknown relation-after-peace policy %q", c.RelationAfterPeace)
	}
	return nil
}

// Service exposes peace negotiation use-cases. Accepting an agreement ends
// its war, applies the relation policy, and settles the offering in one
// atomic step.
type Service struct {
	store    storage.PeaceStore
	wars     storage.WarStore
	escrow   ports.EscrowPort
	notifier ports.NotificationPort
	recorder *history.Recorder
	cfg      Config
	clock    func() time.Time
	newID    func() (string, error)
}

// NewService constructs peace use-cases.
func NewService(store storage.PeaceStore, wars storage.WarStore, escrow ports.EscrowPort, notifier ports.NotificationPort, recorder *history.Recorder, cfg Config, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	if cfg.RelationAfterPeace == "" {
		cfg.RelationAfterPeace = AfterPeaceNone
	}
	return &Service{
		store:    store,
		wars:     wars,
		escrow:   escrow,
		notifier: notifier,
		recorder: recorder,
		cfg:      cfg,
		clock:    clock,
		newID:    newID,
	}
}

// Propose opens a pending agreement for an active war. Only one pending
// agreement may exist per war.
func (s *Service) Propose(ctx context.Context, warID, proposingGuildID, terms string, offering domain.PeaceOffering) (domain.PeaceAgreement, error) {
	war, err := s.activeWar(ctx, warID)
	if err != nil {
		return domain.PeaceAgreement{}, err
	}
	if !war.IsParticipant(proposingGuildID) {
		return domain.PeaceAgreement{}, apperrors.New(apperrors.CodePeaceWrongGuild,
			"only a belligerent may propose peace")
	}

	agreement, err := domain.NewPeaceAgreement(domain.ProposePeaceInput{
		WarID:            war.ID,
		ProposingGuildID: proposingGuildID,
		TargetGuildID:    war.Opponent(proposingGuildID),
		PeaceTerms:       terms,
		Offering:         offering,
	}, s.clock, s.newID)
	if err != nil {
		return domain.PeaceAgreement{}, err
	}

	if err := s.store.CreateAgreement(ctx, agreement); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.PeaceAgreement{}, apperrors.New(apperrors.CodePeacePendingExists,
				"the war already has a pending peace agreement")
		}
		return domain.PeaceAgreement{}, apperrors.Wrap(apperrors.CodeUnknown, "propose peace", err)
	}

	s.recorder.Record(ctx, war.DeclaringGuildID, war.DefendingGuildID, history.EventPeaceProposed, agreement.ID)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "peace.proposed",
		Subject: agreement.ID,
		Detail:  agreement.PeaceTerms,
	}, agreement.TargetGuildID)
	return agreement, nil
}

func (s *Service) activeWar(ctx context.Context, warID string) (domain.War, error) {
	war, err := s.wars.GetWar(ctx, warID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.War{}, apperrors.New(apperrors.CodeNotFound, "war not found")
		}
		return domain.War{}, apperrors.Wrap(apperrors.CodeUnknown, "get war", err)
	}
	if war.Status != domain.WarActive {
		return domain.War{}, apperrors.New(apperrors.CodeWarNotActive, "the war is not active")
	}
	return war, nil
}

func (s *Service) pendingAgreement(ctx context.Context, agreementID string) (domain.PeaceAgreement, error) {
	agreement, err := s.store.GetAgreement(ctx, agreementID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.PeaceAgreement{}, apperrors.New(apperrors.CodeNotFound, "peace agreement not found")
		}
		return domain.PeaceAgreement{}, apperrors.Wrap(apperrors.CodeUnknown, "get agreement", err)
	}
	if agreement.Status != domain.PeacePending {
		return domain.PeaceAgreement{}, apperrors.WithMetadata(apperrors.CodePeaceNotPending,
			"the agreement was already resolved", map[string]string{"status": agreement.Status.String()})
	}
	if agreement.ExpiredAt(s.clock().UTC()) {
		_ = s.store.ResolveAgreement(ctx, agreement.ID, domain.PeaceExpired, s.clock().UTC())
		return domain.PeaceAgreement{}, apperrors.New(apperrors.CodePeaceNotPending, "the agreement has expired")
	}
	return agreement, nil
}

// Accept ends the war under the agreement's terms. The status change, war
// termination, relation outcome, and escrow settlement commit together; an
// escrow failure leaves the agreement pending and the war active.
func (s *Service) Accept(ctx context.Context, agreementID, actingGuildID string) (domain.War, error) {
	agreement, err := s.pendingAgreement(ctx, agreementID)
	if err != nil {
		return domain.War{}, err
	}
	if agreement.TargetGuildID != actingGuildID {
		return domain.War{}, apperrors.New(apperrors.CodePeaceWrongGuild,
			"only the other side may accept a peace agreement")
	}
	war, err := s.activeWar(ctx, agreement.WarID)
	if err != nil {
		return domain.War{}, err
	}

	now := s.clock().UTC()
	var relation *domain.Relation
	breakRelation := true
	if s.cfg.RelationAfterPeace == AfterPeaceTruce {
		// A non-positive duration fails the relation build below rather
		// than silently falling back to breaking the relation.
		deadline := now.Add(s.cfg.TruceDuration)
		truce, err := domain.NewRelation(war.DeclaringGuildID, war.DefendingGuildID, domain.RelationTruce, now, &deadline)
		if err != nil {
			return domain.War{}, err
		}
		relation = &truce
		breakRelation = false
	}

	settle := func(ctx context.Context) error {
		if agreement.Offering.IsZero() || s.escrow == nil {
			return nil
		}
		if err := s.escrow.Settle(ctx, agreement.ProposingGuildID, agreement.TargetGuildID,
			agreement.Offering.Money, agreement.Offering.ExperiencePoints); err != nil {
			return apperrors.Wrap(apperrors.CodeEscrowFailure, "settle peace offering", err)
		}
		return nil
	}

	if err := s.store.AcceptAgreement(ctx, agreement.ID, now, war, relation, breakRelation, settle); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.War{}, apperrors.New(apperrors.CodePeaceNotPending, "the agreement was already resolved")
		}
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return domain.War{}, err
		}
		return domain.War{}, apperrors.Wrap(apperrors.CodeUnknown, "accept peace", err)
	}

	// The war ended without a winner; return any open stakes.
	if err := s.wars.ResolveWager(ctx, war.ID, domain.WagerRefunded, "", now); err != nil && !errors.Is(err, storage.ErrConflict) && !errors.Is(err, storage.ErrNotFound) {
		return domain.War{}, apperrors.Wrap(apperrors.CodeUnknown, "refund wager", err)
	}

	s.recorder.Record(ctx, war.DeclaringGuildID, war.DefendingGuildID, history.EventPeaceAccepted, agreement.ID)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "peace.accepted",
		Subject: agreement.ID,
	}, war.DeclaringGuildID, war.DefendingGuildID)

	ended, err := s.wars.GetWar(ctx, war.ID)
	if err != nil {
		return domain.War{}, apperrors.Wrap(apperrors.CodeUnknown, "get ended war", err)
	}
	return ended, nil
}

// Reject declines a pending agreement. The war stays active.
func (s *Service) Reject(ctx context.Context, agreementID, actingGuildID string) error {
	agreement, err := s.pendingAgreement(ctx, agreementID)
	if err != nil {
		return err
	}
	if agreement.TargetGuildID != actingGuildID {
		return apperrors.New(apperrors.CodePeaceWrongGuild, "only the other side may reject a peace agreement")
	}

	if err := s.store.ResolveAgreement(ctx, agreement.ID, domain.PeaceRejected, s.clock().UTC()); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperrors.New(apperrors.CodePeaceNotPending, "the agreement was already resolved")
		}
		return apperrors.Wrap(apperrors.CodeUnknown, "reject peace", err)
	}

	s.recorder.Record(ctx, agreement.ProposingGuildID, agreement.TargetGuildID, history.EventPeaceRejected, agreement.ID)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "peace.rejected",
		Subject: agreement.ID,
	}, agreement.ProposingGuildID)
	return nil
}

// SweepExpired lapses pending agreements past their window.
func (s *Service) SweepExpired(ctx context.Context) ([]domain.PeaceAgreement, error) {
	expired, err := s.store.ExpireAgreements(ctx, s.clock().UTC())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "sweep agreements", err)
	}
	return expired, nil
}
