package requests

import (
	"context"
	"testing"
	"time"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/relations"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
	apperrors "github.com/lumalyte/guilds/internal/errors"
)

type fakeStore struct {
	requests  map[string]domain.DiplomaticRequest
	relations map[string]domain.Relation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		requests:  make(map[string]domain.DiplomaticRequest),
		relations: make(map[string]domain.Relation),
	}
}

func pairID(a, b string) string { return a + "|" + b }

func (f *fakeStore) CreateRequest(_ context.Context, request domain.DiplomaticRequest) error {
	for _, existing := range f.requests {
		if existing.Status == domain.RequestPending &&
			existing.FromGuildID == request.FromGuildID &&
			existing.ToGuildID == request.ToGuildID &&
			existing.Type == request.Type {
			return storage.ErrConflict
		}
	}
	f.requests[request.ID] = request
	return nil
}

func (f *fakeStore) GetRequest(_ context.Context, requestID string) (domain.DiplomaticRequest, error) {
	request, ok := f.requests[requestID]
	if !ok {
		return domain.DiplomaticRequest{}, storage.ErrNotFound
	}
	return request, nil
}

func (f *fakeStore) ResolveRequest(_ context.Context, requestID string, status domain.RequestStatus, respondedAt time.Time) error {
	request, ok := f.requests[requestID]
	if !ok || request.Status != domain.RequestPending {
		return storage.ErrConflict
	}
	request.Status = status
	request.RespondedAt = &respondedAt
	f.requests[requestID] = request
	return nil
}

func (f *fakeStore) AcceptRequest(ctx context.Context, requestID string, respondedAt time.Time, relation domain.Relation) error {
	request, ok := f.requests[requestID]
	if !ok || request.Status != domain.RequestPending {
		return storage.ErrConflict
	}
	current := domain.RelationNone
	if existing, ok := f.relations[pairID(relation.GuildA, relation.GuildB)]; ok && !existing.ExpiredAt(respondedAt) {
		current = existing.Type
	}
	if !domain.ValidRelationChange(current, relation.Type) {
		return storage.ErrRelationConflict
	}
	if err := f.ResolveRequest(ctx, requestID, domain.RequestAccepted, respondedAt); err != nil {
		return err
	}
	f.relations[pairID(relation.GuildA, relation.GuildB)] = relation
	return nil
}

func (f *fakeStore) ExpireRequests(_ context.Context, now time.Time) ([]domain.DiplomaticRequest, error) {
	expired := make([]domain.DiplomaticRequest, 0)
	for id, request := range f.requests {
		if request.Status == domain.RequestPending && request.ExpiredAt(now) {
			request.Status = domain.RequestExpired
			request.RespondedAt = &now
			f.requests[id] = request
			expired = append(expired, request)
		}
	}
	return expired, nil
}

func (f *fakeStore) ListRequestsTo(_ context.Context, guildID string) ([]domain.DiplomaticRequest, error) {
	matches := make([]domain.DiplomaticRequest, 0)
	for _, request := range f.requests {
		if request.ToGuildID == guildID && request.Status == domain.RequestPending {
			matches = append(matches, request)
		}
	}
	return matches, nil
}

func (f *fakeStore) ListRequestsFrom(_ context.Context, guildID string) ([]domain.DiplomaticRequest, error) {
	matches := make([]domain.DiplomaticRequest, 0)
	for _, request := range f.requests {
		if request.FromGuildID == guildID && request.Status == domain.RequestPending {
			matches = append(matches, request)
		}
	}
	return matches, nil
}

var _ storage.RequestStore = (*fakeStore)(nil)

// GetRelation and friends satisfy storage.RelationStore so one fake backs
// both services.
func (f *fakeStore) GetRelation(_ context.Context, guildA, guildB string) (domain.Relation, error) {
	relation, ok := f.relations[pairID(guildA, guildB)]
	if !ok {
		return domain.Relation{}, storage.ErrNotFound
	}
	return relation, nil
}

func (f *fakeStore) UpsertRelation(_ context.Context, relation domain.Relation) error {
	f.relations[pairID(relation.GuildA, relation.GuildB)] = relation
	return nil
}

func (f *fakeStore) DeleteRelation(_ context.Context, guildA, guildB string) (bool, error) {
	key := pairID(guildA, guildB)
	if _, ok := f.relations[key]; !ok {
		return false, nil
	}
	delete(f.relations, key)
	return true, nil
}

func (f *fakeStore) DeleteRelationIfExpired(_ context.Context, guildA, guildB string, now time.Time) (bool, error) {
	key := pairID(guildA, guildB)
	relation, ok := f.relations[key]
	if !ok || !relation.ExpiredAt(now) {
		return false, nil
	}
	delete(f.relations, key)
	return true, nil
}

func (f *fakeStore) ListRelationsByGuild(_ context.Context, guildID string) ([]domain.Relation, error) {
	matches := make([]domain.Relation, 0)
	for _, relation := range f.relations {
		if relation.Involves(guildID) {
			matches = append(matches, relation)
		}
	}
	return matches, nil
}

func (f *fakeStore) ListRelationsByType(_ context.Context, guildID string, relationType domain.RelationType) ([]domain.Relation, error) {
	matches := make([]domain.Relation, 0)
	for _, relation := range f.relations {
		if relation.Involves(guildID) && relation.Type == relationType {
			matches = append(matches, relation)
		}
	}
	return matches, nil
}

var _ storage.RelationStore = (*fakeStore)(nil)

func newTestService(store *fakeStore, clock func() time.Time) *Service {
	relationSvc := relations.NewService(store, clock)
	return NewService(store, relationSvc, nil, nil, clock, nil)
}

func TestSendRejectsDuplicate(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	service := newTestService(store, nil)
	ctx := context.Background()

	input := SendInput{FromGuildID: "bears", ToGuildID: "wolves", Type: domain.RequestAlliance}
	if _, err := service.Send(ctx, input); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if _, err := service.Send(ctx, input); !apperrors.IsCode(err, apperrors.CodeRequestDuplicate) {
		t.Fatalf("second Send error = %v, want code %s", err, apperrors.CodeRequestDuplicate)
	}
}

func TestSendChecksCurrentRelation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	enemy, err := domain.NewRelation("bears", "wolves", domain.RelationEnemy, time.Now(), nil)
	if err != nil {
		t.Fatalf("build enemy relation: %v", err)
	}
	_ = store.UpsertRelation(context.Background(), enemy)

	service := newTestService(store, nil)
	ctx := context.Background()

	// Alliance is not reachable from ENEMY; truce is.
	if _, err := service.Send(ctx, SendInput{FromGuildID: "bears", ToGuildID: "wolves", Type: domain.RequestAlliance}); !apperrors.IsCode(err, apperrors.CodeRelationInvalidChange) {
		t.Fatalf("alliance Send error = %v, want code %s", err, apperrors.CodeRelationInvalidChange)
	}
	if _, err := service.Send(ctx, SendInput{FromGuildID: "bears", ToGuildID: "wolves", Type: domain.RequestTruce, TruceDuration: time.Hour}); err != nil {
		t.Fatalf("truce Send returned error: %v", err)
	}
}

func TestAcceptEstablishesRelation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := newTestService(store, func() time.Time { return now })
	ctx := context.Background()

	request, err := service.Send(ctx, SendInput{FromGuildID: "bears", ToGuildID: "wolves", Type: domain.RequestAlliance})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	relation, err := service.Accept(ctx, request.ID, "wolves")
	if err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if relation.Type != domain.RelationAlly {
		t.Fatalf("Type = %v, want %v", relation.Type, domain.RelationAlly)
	}

	// A second accept loses the race against the first.
	if _, err := service.Accept(ctx, request.ID, "wolves"); !apperrors.IsCode(err, apperrors.CodeRequestNotPending) {
		t.Fatalf("second Accept error = %v, want code %s", err, apperrors.CodeRequestNotPending)
	}
}

func TestAcceptTruceCarriesExpiry(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	enemy, err := domain.NewRelation("bears", "wolves", domain.RelationEnemy, time.Now(), nil)
	if err != nil {
		t.Fatalf("build enemy relation: %v", err)
	}
	_ = store.UpsertRelation(context.Background(), enemy)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := newTestService(store, func() time.Time { return now })
	ctx := context.Background()

	request, err := service.Send(ctx, SendInput{
		FromGuildID:   "bears",
		ToGuildID:     "wolves",
		Type:          domain.RequestTruce,
		TruceDuration: 6 * time.Hour,
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	relation, err := service.Accept(ctx, request.ID, "wolves")
	if err != nil {
		t.Fatalf("Accept returned error: %v", err)
	}
	if relation.Type != domain.RelationTruce {
		t.Fatalf("Type = %v, want %v", relation.Type, domain.RelationTruce)
	}
	if relation.ExpiresAt == nil || !relation.ExpiresAt.Equal(now.Add(6*time.Hour)) {
		t.Fatalf("ExpiresAt = %v, want %v", relation.ExpiresAt, now.Add(6*time.Hour))
	}
}

func TestAcceptStaleRequestAfterRelationChange(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	service := newTestService(store, func() time.Time { return now })
	ctx := context.Background()

	request, err := service.Send(ctx, SendInput{FromGuildID: "bears", ToGuildID: "wolves", Type: domain.RequestAlliance})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	// A war activated while the request sat pending; the pair is ENEMY now.
	enemy, err := domain.NewRelation("bears", "wolves", domain.RelationEnemy, now, nil)
	if err != nil {
		t.Fatalf("build enemy relation: %v", err)
	}
	if err := store.UpsertRelation(ctx, enemy); err != nil {
		t.Fatalf("seed enemy relation: %v", err)
	}

	if _, err := service.Accept(ctx, request.ID, "wolves"); !apperrors.IsCode(err, apperrors.CodeRelationInvalidChange) {
		t.Fatalf("Accept error = %v, want code %s", err, apperrors.CodeRelationInvalidChange)
	}

	stored, err := store.GetRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if stored.Status != domain.RequestPending {
		t.Fatalf("Status = %v, want %v", stored.Status, domain.RequestPending)
	}
	relation, err := store.GetRelation(ctx, "bears", "wolves")
	if err != nil {
		t.Fatalf("get relation: %v", err)
	}
	if relation.Type != domain.RelationEnemy {
		t.Fatalf("Type = %v, want %v", relation.Type, domain.RelationEnemy)
	}
}

func TestAcceptGuards(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clockNow := now
	service := newTestService(store, func() time.Time { return clockNow })
	ctx := context.Background()

	request, err := service.Send(ctx, SendInput{FromGuildID: "bears", ToGuildID: "wolves", Type: domain.RequestAlliance})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if _, err := service.Accept(ctx, "missing", "wolves"); !apperrors.IsCode(err, apperrors.CodeNotFound) {
		t.Fatalf("Accept missing error = %v, want code %s", err, apperrors.CodeNotFound)
	}
	if _, err := service.Accept(ctx, request.ID, "bears"); !apperrors.IsCode(err, apperrors.CodeRequestWrongGuild) {
		t.Fatalf("Accept by sender error = %v, want code %s", err, apperrors.CodeRequestWrongGuild)
	}

	clockNow = now.Add(domain.DefaultRequestTTL)
	if _, err := service.Accept(ctx, request.ID, "wolves"); !apperrors.IsCode(err, apperrors.CodeRequestExpired) {
		t.Fatalf("Accept expired error = %v, want code %s", err, apperrors.CodeRequestExpired)
	}
	stored, err := store.GetRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if stored.Status != domain.RequestExpired {
		t.Fatalf("Status = %v, want %v", stored.Status, domain.RequestExpired)
	}
}

func TestRejectAndCancelActorChecks(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	service := newTestService(store, nil)
	ctx := context.Background()

	request, err := service.Send(ctx, SendInput{FromGuildID: "bears", ToGuildID: "wolves", Type: domain.RequestAlliance})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if err := service.Reject(ctx, request.ID, "bears"); !apperrors.IsCode(err, apperrors.CodeRequestWrongGuild) {
		t.Fatalf("Reject by sender error = %v, want code %s", err, apperrors.CodeRequestWrongGuild)
	}
	if err := service.Cancel(ctx, request.ID, "wolves"); !apperrors.IsCode(err, apperrors.CodeRequestWrongGuild) {
		t.Fatalf("Cancel by recipient error = %v, want code %s", err, apperrors.CodeRequestWrongGuild)
	}
	if err := service.Cancel(ctx, request.ID, "bears"); err != nil {
		t.Fatalf("Cancel returned error: %v", err)
	}
	if err := service.Reject(ctx, request.ID, "wolves"); !apperrors.IsCode(err, apperrors.CodeRequestNotPending) {
		t.Fatalf("Reject after cancel error = %v, want code %s", err, apperrors.CodeRequestNotPending)
	}
}

func TestSweepExpired(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clockNow := now
	service := newTestService(store, func() time.Time { return clockNow })
	ctx := context.Background()

	if _, err := service.Send(ctx, SendInput{FromGuildID: "bears", ToGuildID: "wolves", Type: domain.RequestAlliance}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	clockNow = now.Add(domain.DefaultRequestTTL)
	expired, err := service.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired returned error: %v", err)
	}
	if len(expired) != 1 {
		t.Fatalf("len(expired) = %d, want 1", len(expired))
	}

	incoming, err := service.ListIncoming(ctx, "wolves")
	if err != nil {
		t.Fatalf("ListIncoming returned error: %v", err)
	}
	if len(incoming) != 0 {
		t.Fatalf("len(incoming) = %d, want 0 after sweep", len(incoming))
	}
}
