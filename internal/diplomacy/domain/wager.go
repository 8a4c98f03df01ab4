package domain

import (
	"strings"
	"time"

	apperrors "github.com/lumalyte/guilds/internal/errors"
)

// WagerStatus is the lifecycle status of a war wager.
type WagerStatus string

const (
	// WagerOpen indicates stakes are held while the war runs.
	WagerOpen WagerStatus = "OPEN"
	// WagerWon indicates the loser's stake settled to the winner.
	WagerWon WagerStatus = "WON"
	// WagerDraw indicates the war ended without a winner; stakes returned.
	WagerDraw WagerStatus = "DRAW"
	// WagerRefunded indicates stakes were returned without a result.
	WagerRefunded WagerStatus = "REFUNDED"
)

// ParseWagerStatus maps a storage token back to a wager status.
func ParseWagerStatus(raw string) (WagerStatus, error) {
	switch s := WagerStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case WagerOpen, WagerWon, WagerDraw, WagerRefunded:
		return s, nil
	default:
		return "", apperrors.WithMetadata(apperrors.CodeUnknown,
			"unknown wager status", map[string]string{"status": raw})
	}
}

// WarWager holds the money each side staked on a war's outcome.
type WarWager struct {
	WarID          string
	DeclaringStake int64
	DefendingStake int64
	Status         WagerStatus
	WinnerGuildID  string
	ResolvedAt     *time.Time
}

// NewWager builds a validated open wager for a war.
func NewWager(warID string, declaringStake, defendingStake int64) (WarWager, error) {
	warID = strings.TrimSpace(warID)
	if warID == "" {
		return WarWager{}, apperrors.New(apperrors.CodeNotFound, "war id is required")
	}
	if declaringStake < 0 || defendingStake < 0 {
		return WarWager{}, apperrors.New(apperrors.CodePeaceInvalidOffering, "a stake cannot be negative")
	}
	return WarWager{
		WarID:          warID,
		DeclaringStake: declaringStake,
		DefendingStake: defendingStake,
		Status:         WagerOpen,
	}, nil
}

// HasStakes reports whether either side put money down.
func (w WarWager) HasStakes() bool {
	return w.DeclaringStake > 0 || w.DefendingStake > 0
}
