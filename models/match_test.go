package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSetLinksKeepsCountInSync(t *testing.T) {
	var m MatchRecord
	m.SetLinks([]StreamLink{{Name: "CCTV", URL: "http://cctv.com/live"}, {Name: "咪咕", URL: "http://migu.cn/play"}})
	if m.LinkCount != 2 || len(m.Links) != 2 {
		t.Fatalf("Expected 2 links, got count=%d len=%d", m.LinkCount, len(m.Links))
	}

	m.SetLinks(nil)
	if m.LinkCount != 0 || m.Links == nil {
		t.Errorf("Expected empty non-nil links, got count=%d links=%v", m.LinkCount, m.Links)
	}
}

func TestEmptySnapshotSerializesEmptyArray(t *testing.T) {
	data, err := json.Marshal(EmptySnapshot())
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"matches":[]`) {
		t.Errorf("Expected empty matches array, got %s", data)
	}
	if !strings.Contains(string(data), `"total":0`) {
		t.Errorf("Expected total 0, got %s", data)
	}
}

func TestNewSnapshotTotal(t *testing.T) {
	s := NewSnapshot([]MatchRecord{{ID: "a"}, {ID: "b"}}, "2025-10-17 12:00:00", 100)
	if s.Total != 2 {
		t.Errorf("Expected total 2, got %d", s.Total)
	}
	if s.LastFetch != 100 {
		t.Errorf("Expected last_fetch 100, got %d", s.LastFetch)
	}
}
