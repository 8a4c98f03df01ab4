// Package wars manages the lifecycle of inter-guild wars: declaration,
// acceptance, objective progress, and termination.
package wars

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/history"
	"github.com/lumalyte/guilds/internal/diplomacy/ports"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
	apperrors "github.com/lumalyte/guilds/internal/errors"
	"github.com/lumalyte/guilds/internal/platform/id"
)

// Service exposes war use-cases. A war moves PROPOSED → ACTIVE → ENDED;
// every transition is a compare-and-set so racing callers get one winner.
type Service struct {
	store           storage.WarStore
	requestStore    storage.RequestStore
	escrow          ports.EscrowPort
	notifier        ports.NotificationPort
	recorder        *history.Recorder
	clock           func() time.Time
	newID           func() (string, error)
	farmingCooldown time.Duration
}

// Config carries the service's tunables.
type Config struct {
	// FarmingCooldown blocks re-declaring on a guild the declarer beat
	// within the window. Zero disables the check.
	FarmingCooldown time.Duration
}

// NewService constructs war use-cases. requestStore is used to keep an audit
// record of each declaration and may be nil.
func NewService(store storage.WarStore, requestStore storage.RequestStore, escrow ports.EscrowPort, notifier ports.NotificationPort, recorder *history.Recorder, cfg Config, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:           store,
		requestStore:    requestStore,
		escrow:          escrow,
		notifier:        notifier,
		recorder:        recorder,
		clock:           clock,
		newID:           newID,
		farmingCooldown: cfg.FarmingCooldown,
	}
}

// Declare opens a PROPOSED war against the defender. The declaration waits
// for the defender's answer and lapses after its acceptance window.
func (s *Service) Declare(ctx context.Context, input domain.DeclareWarInput, message string) (domain.War, error) {
	war, err := domain.NewWar(input, s.clock, s.newID)
	if err != nil {
		return domain.War{}, err
	}

	liveCount, err := s.store.CountLiveWars(ctx, war.DeclaringGuildID)
	if err != nil {
		return domain.War{}, apperrors.Wrap(apperrors.CodeUnknown, "count live wars", err)
	}
	if liveCount >= domain.MaxConcurrentWars {
		return domain.War{}, apperrors.WithMetadata(apperrors.CodeWarLimitReached,
			"the guild is already engaged in its maximum number of wars",
			map[string]string{"guild_id": war.DeclaringGuildID})
	}
	if err := s.checkFarmingCooldown(ctx, war.DeclaringGuildID, war.DefendingGuildID); err != nil {
		return domain.War{}, err
	}

	if err := s.store.CreateWar(ctx, war); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.War{}, apperrors.New(apperrors.CodeWarAlreadyExists,
				"a war between these guilds is already underway")
		}
		return domain.War{}, apperrors.Wrap(apperrors.CodeUnknown, "create war", err)
	}

	s.recordDeclaration(ctx, war, message)
	s.recorder.Record(ctx, war.DeclaringGuildID, war.DefendingGuildID, history.EventWarDeclared, war.ID)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "war.declared",
		Subject: war.ID,
		Detail:  message,
	}, war.DefendingGuildID)
	return war, nil
}

// checkFarmingCooldown rejects a declaration against an opponent the
// declarer recently beat.
func (s *Service) checkFarmingCooldown(ctx context.Context, declaringGuildID, defendingGuildID string) error {
	if s.farmingCooldown <= 0 {
		return nil
	}
	wars, err := s.store.ListWarsByGuild(ctx, declaringGuildID, 25)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "check war cooldown", err)
	}
	cutoff := s.clock().UTC().Add(-s.farmingCooldown)
	for _, past := range wars {
		if past.Status != domain.WarEnded || past.EndedAt == nil {
			continue
		}
		if !past.IsParticipant(defendingGuildID) {
			continue
		}
		if past.WinnerGuildID == declaringGuildID && past.EndedAt.After(cutoff) {
			return apperrors.WithMetadata(apperrors.CodeWarLimitReached,
				"this opponent was beaten too recently", map[string]string{
					"opponent": defendingGuildID,
				})
		}
	}
	return nil
}

// recordDeclaration keeps a request-ledger audit entry for the declaration.
func (s *Service) recordDeclaration(ctx context.Context, war domain.War, message string) {
	if s.requestStore == nil {
		return
	}
	request, err := domain.NewRequest(domain.CreateRequestInput{
		FromGuildID: war.DeclaringGuildID,
		ToGuildID:   war.DefendingGuildID,
		Type:        domain.RequestWarDeclaration,
		Message:     message,
		TTL:         domain.DeclarationTTL,
	}, s.clock, s.newID)
	if err != nil {
		log.Printf("wars: build declaration record: %v", err)
		return
	}
	if err := s.requestStore.CreateRequest(ctx, request); err != nil && !errors.Is(err, storage.ErrConflict) {
		log.Printf("wars: persist declaration record: %v", err)
	}
}

func (s *Service) getWar(ctx context.Context, warID string) (domain.War, error) {
	war, err := s.store.GetWar(ctx, warID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.War{}, apperrors.New(apperrors.CodeNotFound, "war not found")
		}
		return domain.War{}, apperrors.Wrap(apperrors.CodeUnknown, "get war", err)
	}
	return war, nil
}

// AcceptDeclaration activates a proposed war. The pair becomes ENEMY and the
// wager opens when either side staked, all in one commit.
func (s *Service) AcceptDeclaration(ctx context.Context, warID, actingGuildID string, stake int64) (domain.War, error) {
	war, err := s.getWar(ctx, warID)
	if err != nil {
		return domain.War{}, err
	}
	if war.DefendingGuildID != actingGuildID {
		return domain.War{}, apperrors.New(apperrors.CodeWarWrongGuild, "only the defender may accept a declaration")
	}
	switch war.Status {
	case domain.WarProposed:
	case domain.WarEnded:
		return domain.War{}, apperrors.New(apperrors.CodeWarAlreadyEnded, "the war already ended")
	default:
		return domain.War{}, apperrors.New(apperrors.CodeWarNotProposed, "the war is not awaiting acceptance")
	}

	now := s.clock().UTC()
	if war.DeclarationExpiredAt(now) {
		// Settle the lapse before reporting it.
		_ = s.store.TerminateWar(ctx, war.ID, now, "", domain.EndExpired)
		return domain.War{}, apperrors.New(apperrors.CodeWarDeclarationExpired, "the declaration has expired")
	}
	if stake < 0 {
		return domain.War{}, apperrors.New(apperrors.CodeWarInvalidObjective, "a stake cannot be negative")
	}

	relation, err := domain.NewRelation(war.DeclaringGuildID, war.DefendingGuildID, domain.RelationEnemy, now, nil)
	if err != nil {
		return domain.War{}, err
	}

	var wager *domain.WarWager
	if war.DeclaringStake > 0 || stake > 0 {
		built, err := domain.NewWager(war.ID, war.DeclaringStake, stake)
		if err != nil {
			return domain.War{}, err
		}
		wager = &built
	}

	if err := s.store.ActivateWar(ctx, war.ID, now, relation, wager); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return domain.War{}, apperrors.New(apperrors.CodeWarNotProposed, "the war is not awaiting acceptance")
		}
		return domain.War{}, apperrors.Wrap(apperrors.CodeUnknown, "activate war", err)
	}

	s.recorder.Record(ctx, war.DeclaringGuildID, war.DefendingGuildID, history.EventWarAccepted, war.ID)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "war.accepted",
		Subject: war.ID,
	}, war.DeclaringGuildID, war.DefendingGuildID)
	return s.getWar(ctx, war.ID)
}

// RejectDeclaration ends a proposed war without activating it. The pair's
// relation is untouched.
func (s *Service) RejectDeclaration(ctx context.Context, warID, actingGuildID string) error {
	war, err := s.getWar(ctx, warID)
	if err != nil {
		return err
	}
	if war.DefendingGuildID != actingGuildID {
		return apperrors.New(apperrors.CodeWarWrongGuild, "only the defender may reject a declaration")
	}
	if war.Status != domain.WarProposed {
		return apperrors.New(apperrors.CodeWarNotProposed, "the war is not awaiting acceptance")
	}

	if err := s.store.TerminateWar(ctx, war.ID, s.clock().UTC(), "", domain.EndRejected); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperrors.New(apperrors.CodeWarAlreadyEnded, "the war already ended")
		}
		return apperrors.Wrap(apperrors.CodeUnknown, "reject declaration", err)
	}

	s.recorder.Record(ctx, war.DeclaringGuildID, war.DefendingGuildID, history.EventWarRejected, war.ID)
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "war.rejected",
		Subject: war.ID,
	}, war.DeclaringGuildID)
	return nil
}

// ReportProgress advances the matching objective for one side. Reaching the
// target ends the war in that side's favor.
func (s *Service) ReportProgress(ctx context.Context, warID, guildID string, objectiveType domain.ObjectiveType, delta int64) (domain.WarObjective, error) {
	if delta <= 0 {
		return domain.WarObjective{}, apperrors.New(apperrors.CodeWarInvalidObjective, "progress delta must be positive")
	}
	war, err := s.getWar(ctx, warID)
	if err != nil {
		return domain.WarObjective{}, err
	}
	if !war.IsParticipant(guildID) {
		return domain.WarObjective{}, apperrors.New(apperrors.CodeWarWrongGuild, "only a belligerent may score progress")
	}
	if war.Status != domain.WarActive {
		return domain.WarObjective{}, apperrors.New(apperrors.CodeWarNotActive, "the war is not active")
	}

	objective, err := s.store.BumpObjective(ctx, war.ID, guildID, objectiveType, delta)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.WarObjective{}, apperrors.WithMetadata(apperrors.CodeWarInvalidObjective,
				"the war has no such objective for this side", map[string]string{
					"type": string(objectiveType),
				})
		}
		return domain.WarObjective{}, apperrors.Wrap(apperrors.CodeUnknown, "bump objective", err)
	}

	if objective.Met() {
		if err := s.endWar(ctx, war, objective.HolderGuildID, domain.EndObjectiveMet); err != nil {
			// A racing terminator already closed the war; progress
			// still counted.
			if !apperrors.IsCode(err, apperrors.CodeWarAlreadyEnded) {
				return domain.WarObjective{}, err
			}
		}
	}
	return objective, nil
}

// Surrender ends an active war in the opponent's favor.
func (s *Service) Surrender(ctx context.Context, warID, actingGuildID string) (domain.War, error) {
	war, err := s.getWar(ctx, warID)
	if err != nil {
		return domain.War{}, err
	}
	if !war.IsParticipant(actingGuildID) {
		return domain.War{}, apperrors.New(apperrors.CodeWarWrongGuild, "only a belligerent may surrender")
	}
	if war.Status != domain.WarActive {
		return domain.War{}, apperrors.New(apperrors.CodeWarNotActive, "the war is not active")
	}

	if err := s.endWar(ctx, war, war.Opponent(actingGuildID), domain.EndSurrender); err != nil {
		return domain.War{}, err
	}
	return s.getWar(ctx, war.ID)
}

// End terminates a live war administratively. winnerGuildID may be empty for
// a no-winner outcome.
func (s *Service) End(ctx context.Context, warID, winnerGuildID string, reason domain.EndReason) (domain.War, error) {
	war, err := s.getWar(ctx, warID)
	if err != nil {
		return domain.War{}, err
	}
	if winnerGuildID != "" && !war.IsParticipant(winnerGuildID) {
		return domain.War{}, apperrors.New(apperrors.CodeWarWrongGuild, "the winner must be a belligerent")
	}
	if war.Status == domain.WarEnded {
		return domain.War{}, apperrors.New(apperrors.CodeWarAlreadyEnded, "the war already ended")
	}

	if err := s.endWar(ctx, war, winnerGuildID, reason); err != nil {
		return domain.War{}, err
	}
	return s.getWar(ctx, war.ID)
}

// endWar commits the termination, resolves any wager, and fans out the
// outcome.
func (s *Service) endWar(ctx context.Context, war domain.War, winnerGuildID string, reason domain.EndReason) error {
	now := s.clock().UTC()
	if err := s.store.TerminateWar(ctx, war.ID, now, winnerGuildID, reason); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperrors.New(apperrors.CodeWarAlreadyEnded, "the war already ended")
		}
		return apperrors.Wrap(apperrors.CodeUnknown, "terminate war", err)
	}

	s.settleWager(ctx, war, winnerGuildID, now)
	s.recorder.Record(ctx, war.DeclaringGuildID, war.DefendingGuildID, history.EventWarEnded, string(reason))
	ports.NotifyAll(ctx, s.notifier, ports.Event{
		Type:    "war.ended",
		Subject: war.ID,
		Detail:  string(reason),
	}, war.DeclaringGuildID, war.DefendingGuildID)
	return nil
}

// settleWager resolves the war's wager against its outcome. Stakes only move
// when there is a winner; a draw or rejection returns them untouched.
func (s *Service) settleWager(ctx context.Context, war domain.War, winnerGuildID string, now time.Time) {
	wager, err := s.store.GetWager(ctx, war.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("wars: load wager for %s: %v", war.ID, err)
		}
		return
	}
	if wager.Status != domain.WagerOpen {
		return
	}

	status := domain.WagerDraw
	if winnerGuildID != "" {
		status = domain.WagerWon
	}
	if err := s.store.ResolveWager(ctx, war.ID, status, winnerGuildID, now); err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			log.Printf("wars: resolve wager for %s: %v", war.ID, err)
		}
		return
	}
	if winnerGuildID == "" {
		return
	}

	loser := war.Opponent(winnerGuildID)
	loserStake := wager.DeclaringStake
	if loser == war.DefendingGuildID {
		loserStake = wager.DefendingStake
	}
	if loserStake == 0 || s.escrow == nil {
		return
	}
	if err := s.escrow.Settle(ctx, loser, winnerGuildID, loserStake, 0); err != nil {
		log.Printf("wars: settle wager for %s: %v", war.ID, err)
	}
}

// SweepExpired lapses declarations past their window and draws wars past
// their duration. Safe to run concurrently with accepts and terminations.
func (s *Service) SweepExpired(ctx context.Context) ([]domain.War, error) {
	now := s.clock().UTC()

	lapsed, err := s.store.ExpireProposedWars(ctx, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "expire proposed wars", err)
	}
	for _, war := range lapsed {
		s.recorder.Record(ctx, war.DeclaringGuildID, war.DefendingGuildID, history.EventWarExpired, war.ID)
	}

	drawn, err := s.store.ExpireActiveWars(ctx, now)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "expire active wars", err)
	}
	for _, war := range drawn {
		s.settleWager(ctx, war, "", now)
		s.recorder.Record(ctx, war.DeclaringGuildID, war.DefendingGuildID, history.EventWarDrawn, war.ID)
		ports.NotifyAll(ctx, s.notifier, ports.Event{
			Type:    "war.ended",
			Subject: war.ID,
			Detail:  string(domain.EndDraw),
		}, war.DeclaringGuildID, war.DefendingGuildID)
	}

	return append(lapsed, drawn...), nil
}

// History returns the guild's wars, most recent first.
func (s *Service) History(ctx context.Context, guildID string, limit int) ([]domain.War, error) {
	wars, err := s.store.ListWarsByGuild(ctx, guildID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "list wars", err)
	}
	return wars, nil
}

// Record summarizes a guild's war outcomes.
type Record struct {
	Wins   int
	Losses int
	Draws  int
}

// Ratio returns wins over decided wars, or 0 with no decided wars.
func (r Record) Ratio() float64 {
	decided := r.Wins + r.Losses
	if decided == 0 {
		return 0
	}
	return float64(r.Wins) / float64(decided)
}

// WinLossRecord tallies the guild's ended wars.
func (s *Service) WinLossRecord(ctx context.Context, guildID string) (Record, error) {
	wars, err := s.store.ListWarsByGuild(ctx, guildID, 0)
	if err != nil {
		return Record{}, apperrors.Wrap(apperrors.CodeUnknown, "list wars", err)
	}

	var record Record
	for _, war := range wars {
		if war.Status != domain.WarEnded {
			continue
		}
		switch {
		case war.WinnerGuildID == guildID:
			record.Wins++
		case war.WinnerGuildID != "":
			record.Losses++
		case war.EndReason == domain.EndDraw:
			record.Draws++
		}
	}
	return record, nil
}
