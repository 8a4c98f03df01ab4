// Package ports declares the collaborator contracts the diplomacy services
// depend on. Callers supply implementations backed by their permission,
// roster, and economy systems.
package ports

import (
	"context"
	"log"
)

// Permission names an action a guild member may be granted.
type Permission string

const (
	// PermissionManageRelations covers sending and answering requests.
	PermissionManageRelations Permission = "MANAGE_RELATIONS"
	// PermissionDeclareWar covers declaring and answering wars.
	PermissionDeclareWar Permission = "DECLARE_WAR"
	// PermissionNegotiatePeace covers proposing and answering peace.
	PermissionNegotiatePeace Permission = "NEGOTIATE_PEACE"
)

// PermissionPort answers whether an actor may perform an action for a guild.
// The diplomacy core never embeds permission logic; callers gate on this.
type PermissionPort interface {
	HasPermission(ctx context.Context, actorID, guildID string, permission Permission) (bool, error)
}

// MembershipPort exposes guild rosters for notification fan-out.
type MembershipPort interface {
	ListMembers(ctx context.Context, guildID string) ([]string, error)
}

// EscrowPort moves value between guilds. Settle must be atomic on its side:
// either the full transfer lands or nothing does.
type EscrowPort interface {
	Settle(ctx context.Context, fromGuildID, toGuildID string, money, experiencePoints int64) error
}

// Event is a committed diplomatic state change pushed to interested guilds.
type Event struct {
	Type    string
	GuildID string
	Subject string
	Detail  string
}

// NotificationPort delivers events to a guild. Delivery is best effort and
// happens only after the underlying transaction committed.
type NotificationPort interface {
	Notify(ctx context.Context, guildID string, event Event)
}

// NotifyAll fans an event out to both guilds. Failures are the port's
// problem; the caller never blocks a committed transition on delivery.
func NotifyAll(ctx context.Context, port NotificationPort, event Event, guildIDs ...string) {
	if port == nil {
		return
	}
	for _, guildID := range guildIDs {
		scoped := event
		scoped.GuildID = guildID
		port.Notify(ctx, guildID, scoped)
	}
}

// MemberNotifier fans a guild's events out to its member roster, one
// delivery per member. Roster and delivery failures stay inside the port so
// a committed transition never fails on notification.
type MemberNotifier struct {
	members MembershipPort
	deliver func(ctx context.Context, memberID string, event Event)
}

// NewMemberNotifier builds a notifier that resolves recipients through the
// roster and hands each member's copy to deliver.
func NewMemberNotifier(members MembershipPort, deliver func(ctx context.Context, memberID string, event Event)) *MemberNotifier {
	return &MemberNotifier{members: members, deliver: deliver}
}

// Notify implements NotificationPort.
func (n *MemberNotifier) Notify(ctx context.Context, guildID string, event Event) {
	if n == nil || n.members == nil || n.deliver == nil {
		return
	}
	memberIDs, err := n.members.ListMembers(ctx, guildID)
	if err != nil {
		log.Printf("notify guild %s: list members: %v", guildID, err)
		return
	}
	for _, memberID := range memberIDs {
		n.deliver(ctx, memberID, event)
	}
}

// NopNotifier discards events, logging them for operator visibility.
type NopNotifier struct{}

// Notify implements NotificationPort.
func (NopNotifier) Notify(_ context.Context, guildID string, event Event) {
	log.Printf("diplomacy event %s for guild %s: %s", event.Type, guildID, event.Detail)
}

// NopEscrow rejects nothing and moves nothing; suitable for deployments
// without an economy.
type NopEscrow struct{}

// Settle implements EscrowPort.
func (NopEscrow) Settle(context.Context, string, string, int64, int64) error {
	return nil
}

// AllowAllPermissions grants every permission; suitable for tests and
// deployments that gate upstream.
type AllowAllPermissions struct{}

// HasPermission implements PermissionPort.
func (AllowAllPermissions) HasPermission(context.Context, string, string, Permission) (bool, error) {
	return true, nil
}
