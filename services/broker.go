package services

import (
	"errors"
	"fmt"

	"skzb-service/models"
)

// ErrNotConnected 发布器尚未连接
var ErrNotConnected = errors.New("not connected")

// SnapshotEvent 快照刷新事件，发布到消息队列
type SnapshotEvent struct {
	Type       string               `json:"type"`
	UpdateTime string               `json:"update_time"`
	Total      int                  `json:"total"`
	LastFetch  int64                `json:"last_fetch"`
	Matches    []models.MatchRecord `json:"matches,omitempty"`
}

// NewSnapshotEvent 构造事件；withMatches 为 false 时只携带摘要
func NewSnapshotEvent(snap models.Snapshot, withMatches bool) SnapshotEvent {
	ev := SnapshotEvent{
		Type:       "snapshot_refreshed",
		UpdateTime: snap.UpdateTime,
		Total:      snap.Total,
		LastFetch:  snap.LastFetch,
	}
	if withMatches {
		ev.Matches = snap.Matches
	}
	return ev
}

// RoutingKey 按日期生成路由键，例如 matches.2025-10-17
func RoutingKey(snap models.Snapshot) string {
	if len(snap.Matches) == 0 {
		return "matches.empty"
	}
	return fmt.Sprintf("matches.%s", snap.Matches[0].Date)
}
