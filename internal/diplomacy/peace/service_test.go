package peace

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
	apperrors "github.com/lumalyte/guilds/internal/errors"
)

type fakeStore struct {
	agreements map[string]domain.PeaceAgreement
	wars       map[string]domain.War
	relations  map[string]domain.Relation
	wagers     map[string]domain.WarWager
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agreements: make(map[string]domain.PeaceAgreement),
		wars:       make(map[string]domain.War),
		relations:  make(map[string]domain.Relation),
		wagers:     make(map[string]domain.WarWager),
	}
}

func (f *fakeStore) CreateAgreement(_ context.Context, agreement domain.PeaceAgreement) error {
	for _, existing := range f.agreements {
		if existing.WarID == agreement.WarID && existing.Status == domain.PeacePending {
			return storage.ErrConflict
		}
	}
	f.agreements[agreement.ID] = agreement
	return nil
}

func (f *fakeStore) GetAgreement(_ context.Context, agreementID string) (domain.PeaceAgreement, error) {
	agreement, ok := f.agreements[agreementID]
	if !ok {
		return domain.PeaceAgreement{}, storage.ErrNotFound
	}
	return agreement, nil
}

func (f *fakeStore) ResolveAgreement(_ context.Context, agreementID string, status domain.PeaceStatus, resolvedAt time.Time) error {
	agreement, ok := f.agreements[agreementID]
	if !ok || agreement.Status != domain.PeacePending {
		return storage.ErrConflict
	}
	agreement.Status = status
	agreement.ResolvedAt = &resolvedAt
	f.agreements[agreementID] = agreement
	return nil
}

func (f *fakeStore) AcceptAgreement(ctx context.Context, agreementID string, resolvedAt time.Time, war domain.War, relation *domain.Relation, breakRelation bool, settle func(ctx context.Context) error) error {
	agreement, ok := f.agreements[agreementID]
	if !ok || agreement.Status != domain.PeacePending {
		return storage.ErrConflict
	}
	stored, ok := f.wars[war.ID]
	if !ok || stored.Status == domain.WarEnded {
		return storage.ErrConflict
	}
	if settle != nil {
		if err := settle(ctx); err != nil {
			return err
		}
	}
	agreement.Status = domain.PeaceAccepted
	agreement.ResolvedAt = &resolvedAt
	f.agreements[agreementID] = agreement
	stored.Status = domain.WarEnded
	stored.EndedAt = &resolvedAt
	stored.EndReason = domain.EndPeaceAgreement
	f.wars[war.ID] = stored
	pairA, pairB, err := domain.PairKey(war.DeclaringGuildID, war.DefendingGuildID)
	if err != nil {
		return err
	}
	key := pairA + "|" + pairB
	if relation != nil {
		f.relations[key] = *relation
	} else if breakRelation {
		delete(f.relations, key)
	}
	return nil
}

func (f *fakeStore) ExpireAgreements(_ context.Context, now time.Time) ([]domain.PeaceAgreement, error) {
	expired := make([]domain.PeaceAgreement, 0)
	for id, agreement := range f.agreements {
		if agreement.Status == domain.PeacePending && agreement.ExpiredAt(now) {
			agreement.Status = domain.PeaceExpired
			agreement.ResolvedAt = &now
			f.agreements[id] = agreement
			expired = append(expired, agreement)
		}
	}
	return expired, nil
}

var _ storage.PeaceStore = (*fakeStore)(nil)

// WarStore subset used by the peace service.
func (f *fakeStore) GetWar(_ context.Context, warID string) (domain.War, error) {
	war, ok := f.wars[warID]
	if !ok {
		return domain.War{}, storage.ErrNotFound
	}
	return war, nil
}

func (f *fakeStore) CreateWar(_ context.Context, war domain.War) error {
	f.wars[war.ID] = war
	return nil
}

func (f *fakeStore) LiveWarForPair(context.Context, string, string) (domain.War, error) {
	return domain.War{}, storage.ErrNotFound
}

func (f *fakeStore) CountLiveWars(context.Context, string) (int, error) { return 0, nil }

func (f *fakeStore) ActivateWar(context.Context, string, time.Time, domain.Relation, *domain.WarWager) error {
	return nil
}

func (f *fakeStore) TerminateWar(context.Context, string, time.Time, string, domain.EndReason) error {
	return nil
}

func (f *fakeStore) BumpObjective(context.Context, string, string, domain.ObjectiveType, int64) (domain.WarObjective, error) {
	return domain.WarObjective{}, storage.ErrNotFound
}

func (f *fakeStore) GetWager(_ context.Context, warID string) (domain.WarWager, error) {
	wager, ok := f.wagers[warID]
	if !ok {
		return domain.WarWager{}, storage.ErrNotFound
	}
	return wager, nil
}

func (f *fakeStore) ResolveWager(_ context.Context, warID string, status domain.WagerStatus, winnerGuildID string, resolvedAt time.Time) error {
	wager, ok := f.wagers[warID]
	if !ok || wager.Status != domain.WagerOpen {
		return storage.ErrConflict
	}
	wager.Status = status
	wager.WinnerGuildID = winnerGuildID
	wager.ResolvedAt = &resolvedAt
	f.wagers[warID] = wager
	return nil
}

func (f *fakeStore) ExpireProposedWars(context.Context, time.Time) ([]domain.War, error) {
	return nil, nil
}

func (f *fakeStore) ExpireActiveWars(context.Context, time.Time) ([]domain.War, error) {
	return nil, nil
}

func (f *fakeStore) ListWarsByGuild(context.Context, string, int) ([]domain.War, error) {
	return nil, nil
}

var _ storage.WarStore = (*fakeStore)(nil)

type fakeEscrow struct {
	err     error
	settled int
}

func (f *fakeEscrow) Settle(context.Context, string, string, int64, int64) error {
	if f.err != nil {
		return f.err
	}
	f.settled++
	return nil
}

func seedActiveWar(t *testing.T, store *fakeStore) domain.War {
	t.Helper()
	war, err := domain.NewWar(domain.DeclareWarInput{
		DeclaringGuildID: "bears",
		DefendingGuildID: "wolves",
		Objectives: []domain.ObjectiveInput{
			{HolderGuildID: "bears", Type: domain.ObjectiveKills, TargetValue: 5},
		},
		Duration: 48 * time.Hour,
	}, nil, nil)
	if err != nil {
		t.Fatalf("build war: %v", err)
	}
	acceptedAt := war.DeclaredAt
	war.Status = domain.WarActive
	war.AcceptedAt = &acceptedAt
	store.wars[war.ID] = war
	return war
}

func TestProposeRequiresActiveWar(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	service := NewService(store, store, nil, nil, nil, Config{}, nil, nil)
	ctx := context.Background()

	if _, err := service.Propose(ctx, "missing", "bears", "stop", domain.PeaceOffering{}); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("Propose error = %v, want code %s", err, apperrors.CodeNotFound)
	}

	war := seedActiveWar(t, store)
	if _, err := service.Propose(ctx, war.ID, "ravens", "stop", domain.PeaceOffering{}); !apperrors.IsCode(err, apperrors.CodePeaceWrongGuild) {
		t.Fatalf("outsider Propose error = %v, want code %s", err, apperrors.CodePeaceWrongGuild)
	}

	agreement, err := service.Propose(ctx, war.ID, "bears", "stop", domain.PeaceOffering{Money: 100})
	if err != nil {
		t.Fatalf("Propose returned error: %v", err)
	}
	if agreement.TargetGuildID != "wolves" {
		t.Fatalf("TargetGuildID = %q, want wolves", agreement.TargetGuildID)
	}

	if _, err := service.Propose(ctx, war.ID, "wolves", "stop too", domain.PeaceOffering{}); !apperrors.IsCode(err, apperrors.CodePeacePendingExists) {
		t.Fatalf("second Propose error = %v, want code %s", err, apperrors.CodePeacePendingExists)
	}
}

func TestAcceptEndsWarAndSettlesOffering(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	escrow := &fakeEscrow{}
	service := NewService(store, store, escrow, nil, nil, Config{}, nil, nil)
	ctx := context.Background()

	war := seedActiveWar(t, store)
	agreement, err := service.Propose(ctx, war.ID, "bears", "stop", domain.PeaceOffering{Money: 100})
	if err != nil {
		t.Fatalf("Propose returned error: %v", err)
	}

	if _, err := service.Accept(ctx, agreement.ID, "bears"); !apperrors.IsCode(err, apperrors.CodePeaceWrongGuild) {
		t.Fatalf("Accept by proposer error = %v, want code %s", err, apperrors.CodePeaceWrongGuild)
	}

	ended, err := service.Accept(ctx, agreement.ID, "wolves")
	if err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if ended.Status != domain.WarEnded || ended.EndReason != domain.EndPeaceAgreement {
		t.Fatalf("war = %v/%q, want ENDED via peace", ended.Status, ended.EndReason)
	}
	if escrow.settled != 1 {
		t.Fatalf("settled = %d, want 1", escrow.settled)
	}
	if _, ok := store.relations["bears|wolves"]; ok {
		t.Fatal("expected the ENEMY relation to be removed")
	}

	if _, err := service.Accept(ctx, agreement.ID, "wolves"); !apperrors.IsCode(err, apperrors.CodePeaceNotPending) {
		t.Fatalf("second Accept error = %v, want code %s", err, apperrors.CodePeaceNotPending)
	}
}

func TestAcceptEscrowFailureLeavesWarActive(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	escrow := &fakeEscrow{err: errors.New("escrow unavailable")}
	service := NewService(store, store, escrow, nil, nil, Config{}, nil, nil)
	ctx := context.Background()

	war := seedActiveWar(t, store)
	agreement, err := service.Propose(ctx, war.ID, "bears", "stop", domain.PeaceOffering{Money: 100})
	if err != nil {
		t.Fatalf("Propose returned error: %v", err)
	}

	if _, err := service.Accept(ctx, agreement.ID, "wolves"); !apperrors.IsCode(err, apperrors.CodeEscrowFailure) {
		t.Fatalf("Accept error = %v, want code %s", err, apperrors.CodeEscrowFailure)
	}

	pending, err := store.GetAgreement(ctx, agreement.ID)
	if err != nil {
		t.Fatalf("get agreement: %v", err)
	}
	if pending.Status != domain.PeacePending {
		t.Fatalf("Status = %v, want %v", pending.Status, domain.PeacePending)
	}
	liveWar, err := store.GetWar(ctx, war.ID)
	if err != nil {
		t.Fatalf("get war: %v", err)
	}
	if liveWar.Status != domain.WarActive {
		t.Fatalf("war Status = %v, want %v", liveWar.Status, domain.WarActive)
	}
}

func TestAcceptTrucePolicy(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := NewService(store, store, nil, nil, nil, Config{
		RelationAfterPeace: AfterPeaceTruce,
		TruceDuration:      24 * time.Hour,
	}, func() time.Time { return now }, nil)
	ctx := context.Background()

	war := seedActiveWar(t, store)
	agreement, err := service.Propose(ctx, war.ID, "bears", "stop", domain.PeaceOffering{})
	if err != nil {
		t.Fatalf("Propose returned error: %v", err)
	}
	if _, err := service.Accept(ctx, agreement.ID, "wolves"); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}

	relation, ok := store.relations["bears|wolves"]
	if !ok {
		t.Fatal("expected a truce relation after peace")
	}
	if relation.Type != domain.RelationTruce {
		t.Fatalf("Type = %v, want %v", relation.Type, domain.RelationTruce)
	}
	if relation.ExpiresAt == nil || !relation.ExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("ExpiresAt = %v, want %v", relation.ExpiresAt, now.Add(24*time.Hour))
	}
}

func TestAcceptRefundsWager(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	service := NewService(store, store, nil, nil, nil, Config{}, nil, nil)
	ctx := context.Background()

	war := seedActiveWar(t, store)
	wager, err := domain.NewWager(war.ID, 100, 50)
	if err != nil {
		t.Fatalf("build wager: %v", err)
	}
	store.wagers[war.ID] = wager

	agreement, err := service.Propose(ctx, war.ID, "bears", "stop", domain.PeaceOffering{})
	if err != nil {
		t.Fatalf("Propose returned error: %v", err)
	}
	if _, err := service.Accept(ctx, agreement.ID, "wolves"); err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}

	if got := store.wagers[war.ID].Status; got != domain.WagerRefunded {
		t.Fatalf("wager Status = %v, want %v", got, domain.WagerRefunded)
	}
}

func TestRejectLeavesWarActive(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	service := NewService(store, store, nil, nil, nil, Config{}, nil, nil)
	ctx := context.Background()

	war := seedActiveWar(t, store)
	agreement, err := service.Propose(ctx, war.ID, "bears", "stop", domain.PeaceOffering{})
	if err != nil {
		t.Fatalf("Propose returned error: %v", err)
	}

	if err := service.Reject(ctx, agreement.ID, "bears"); !apperrors.IsCode(err, apperrors.CodePeaceWrongGuild) {
		t.Fatalf("Reject by proposer error = %v, want code %s", err, apperrors.CodePeaceWrongGuild)
	}
	if err := service.Reject(ctx, agreement.ID, "wolves"); err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}

	liveWar, err := store.GetWar(ctx, war.ID)
	if err != nil {
		t.Fatalf("get war: %v", err)
	}
	if liveWar.Status != domain.WarActive {
		t.Fatalf("war Status = %v, want %v", liveWar.Status, domain.WarActive)
	}

	// A rejection frees the slot for a new proposal.
	if _, err := service.Propose(ctx, war.ID, "wolves", "our turn", domain.PeaceOffering{}); err != nil {
		t.Fatalf("Propose after reject returned error: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"default", Config{}, false},
		{"none", Config{RelationAfterPeace: AfterPeaceNone}, false},
		{"truce with duration", Config{RelationAfterPeace: AfterPeaceTruce, TruceDuration: time.Hour}, false},
		{"truce without duration", Config{RelationAfterPeace: AfterPeaceTruce}, true},
		{"unknown policy", Config{RelationAfterPeace: "cease-fire"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSweepExpired(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clockNow := now
	service := NewService(store, store, nil, nil, nil, Config{}, func() time.Time { return clockNow }, nil)
	ctx := context.Background()

	war := seedActiveWar(t, store)
	if _, err := service.Propose(ctx, war.ID, "bears", "stop", domain.PeaceOffering{}); err != nil {
		t.Fatalf("Propose returned error: %v", err)
	}

	clockNow = now.Add(domain.DefaultAgreementTTL)
	expired, err := service.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired returned error: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("len(expired) = %d, want 1", len(expired))
	}
}
