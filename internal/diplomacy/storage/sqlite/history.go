package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lumalyte/guilds/internal/diplomacy/domain"
	"github.com/lumalyte/guilds/internal/diplomacy/storage"
)

// AppendHistory records one diplomatic event.
func (s *Store) AppendHistory(ctx context.Context, entry storage.HistoryEntry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO diplomacy_history (id, guild_a, guild_b, event_type, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.GuildA,
		entry.GuildB,
		entry.EventType,
		entry.Detail,
		toMillis(entry.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ListHistoryByGuild returns the guild's events, most recent first.
func (s *Store) ListHistoryByGuild(ctx context.Context, guildID string, limit int) ([]storage.HistoryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("guild id is required")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, guild_a, guild_b, event_type, detail, occurred_at
		 FROM diplomacy_history
		 WHERE guild_a = ? OR guild_b = ?
		 ORDER BY occurred_at DESC
		 LIMIT ?`,
		guildID,
		guildID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	return collectHistory(rows)
}

// ListHistoryByPair returns the pair's events, most recent first.
func (s *Store) ListHistoryByPair(ctx context.Context, guildA, guildB string, limit int) ([]storage.HistoryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	pairA, pairB, err := domain.PairKey(guildA, guildB)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, guild_a, guild_b, event_type, detail, occurred_at
		 FROM diplomacy_history
		 WHERE guild_a = ? AND guild_b = ?
		 ORDER BY occurred_at DESC
		 LIMIT ?`,
		pairA,
		pairB,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	return collectHistory(rows)
}

// ListHistoryByType returns the guild's events of one type, most recent first.
func (s *Store) ListHistoryByType(ctx context.Context, guildID, eventType string, limit int) ([]storage.HistoryEntry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("guild id is required")
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, fmt.Errorf("event type is required")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, guild_a, guild_b, event_type, detail, occurred_at
		 FROM diplomacy_history
		 WHERE (guild_a = ? OR guild_b = ?) AND event_type = ?
		 ORDER BY occurred_at DESC
		 LIMIT ?`,
		guildID,
		guildID,
		eventType,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	return collectHistory(rows)
}

func collectHistory(rows *sql.Rows) ([]storage.HistoryEntry, error) {
	entries := make([]storage.HistoryEntry, 0)
	for rows.Next() {
		var (
			entry      storage.HistoryEntry
			occurredAt int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.GuildA,
			&entry.GuildB,
			&entry.EventType,
			&entry.Detail,
			&occurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.OccurredAt = fromMillis(occurredAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

var _ storage.HistoryStore = (*Store)(nil)
