package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"skzb-service/models"
)

// ErrArchiveDisabled 未配置 DATABASE_URL
var ErrArchiveDisabled = errors.New("snapshot archive is disabled")

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	writeTimeout        = 5 * time.Second
)

// SnapshotSummary 归档快照摘要
type SnapshotSummary struct {
	ID         int64     `json:"id"`
	UpdateTime string    `json:"update_time"`
	LastFetch  int64     `json:"last_fetch"`
	Total      int       `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}

// SnapshotArchive 把每次成功刷新的快照写入 Postgres。只写不读回缓存。
type SnapshotArchive struct {
	db *sql.DB
}

// NewSnapshotArchive db 为 nil 时归档禁用
func NewSnapshotArchive(db *sql.DB) *SnapshotArchive {
	return &SnapshotArchive{db: db}
}

// Enabled 是否启用
func (a *SnapshotArchive) Enabled() bool {
	return a != nil && a.db != nil
}

// OnSnapshot 归档一次快照
func (a *SnapshotArchive) OnSnapshot(ctx context.Context, snap models.Snapshot) error {
	if !a.Enabled() {
		return ErrArchiveDisabled
	}

	matches, err := json.Marshal(snap.Matches)
	if err != nil {
		return fmt.Errorf("failed to marshal matches: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err = a.db.ExecContext(ctx,
		`INSERT INTO match_snapshots (update_time, last_fetch, total, matches) VALUES ($1, $2, $3, $4)`,
		snap.UpdateTime, snap.LastFetch, snap.Total, string(matches),
	)
	if err != nil {
		return fmt.Errorf("failed to archive snapshot: %w", err)
	}
	return nil
}

// Recent 最近的快照摘要，按时间倒序
func (a *SnapshotArchive) Recent(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	if !a.Enabled() {
		return nil, ErrArchiveDisabled
	}

	rows, err := a.db.QueryContext(ctx,
		`SELECT id, update_time, last_fetch, total, created_at
		 FROM match_snapshots ORDER BY id DESC LIMIT $1`,
		ClampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	out := []SnapshotSummary{}
	for rows.Next() {
		var s SnapshotSummary
		if err := rows.Scan(&s.ID, &s.UpdateTime, &s.LastFetch, &s.Total, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ClampLimit 把 limit 限制在 [1, 200]，<= 0 时为默认值 20
func ClampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
