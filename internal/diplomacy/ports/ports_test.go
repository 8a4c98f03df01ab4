package ports

import (
	"context"
	"errors"
	"testing"
)

type fakeMembership struct {
	members map[string][]string
	err     error
}

func (f *fakeMembership) ListMembers(_ context.Context, guildID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members[guildID], nil
}

func TestNotifyAllScopesEventPerGuild(t *testing.T) {
	t.Parallel()

	var got []Event
	notifier := notifierFunc(func(_ context.Context, _ string, event Event) {
		got = append(got, event)
	})

	NotifyAll(context.Background(), notifier, Event{Type: "war.declared", Subject: "w1"}, "bears", "wolves")

	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
	if got[0].GuildID != "bears" || got[1].GuildID != "wolves" {
		t.Fatalf("guilds = (%q, %q), want (bears, wolves)", got[0].GuildID, got[1].GuildID)
	}
}

type notifierFunc func(ctx context.Context, guildID string, event Event)

func (f notifierFunc) Notify(ctx context.Context, guildID string, event Event) {
	f(ctx, guildID, event)
}

func TestMemberNotifierFansOutToRoster(t *testing.T) {
	t.Parallel()

	roster := &fakeMembership{members: map[string][]string{
		"bears": {"m1", "m2", "m3"},
	}}
	delivered := make(map[string]Event)
	notifier := NewMemberNotifier(roster, func(_ context.Context, memberID string, event Event) {
		delivered[memberID] = event
	})

	notifier.Notify(context.Background(), "bears", Event{Type: "war.declared", GuildID: "bears", Subject: "w1"})

	if len(delivered) != 3 {
		t.Fatalf("len(delivered) = %d, want 3", len(delivered))
	}
	if delivered["m2"].Type != "war.declared" {
		t.Fatalf("Type = %q, want war.declared", delivered["m2"].Type)
	}
}

func TestMemberNotifierSwallowsRosterErrors(t *testing.T) {
	t.Parallel()

	roster := &fakeMembership{err: errors.New("roster down")}
	calls := 0
	notifier := NewMemberNotifier(roster, func(context.Context, string, Event) {
		calls++
	})

	notifier.Notify(context.Background(), "bears", Event{Type: "war.declared"})

	if calls != 0 {
		t.Fatalf("calls = %d, want 0 when the roster fails", calls)
	}
}
