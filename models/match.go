package models

// StreamLink 直播信号
type StreamLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// MatchRecord 单场比赛记录
type MatchRecord struct {
	ID        string       `json:"id"`
	Date      string       `json:"date"`     // YYYY-MM-DD
	Time      string       `json:"time"`     // HH:MM
	DateTime  string       `json:"datetime"` // "date time"
	League    string       `json:"league"`
	Teams     string       `json:"teams"`
	Title     string       `json:"title"`
	Links     []StreamLink `json:"links"`
	LinkCount int          `json:"link_count"`
}

// SetLinks 替换直播信号并同步 LinkCount
func (m *MatchRecord) SetLinks(links []StreamLink) {
	if links == nil {
		links = []StreamLink{}
	}
	m.Links = links
	m.LinkCount = len(links)
}

// Snapshot 缓存快照，刷新时整体替换
type Snapshot struct {
	UpdateTime string        `json:"update_time"`
	Total      int           `json:"total"`
	Matches    []MatchRecord `json:"matches"`
	LastFetch  int64         `json:"last_fetch"`
}

// NewSnapshot 构造快照，Total 总是等于 len(matches)
func NewSnapshot(matches []MatchRecord, updateTime string, lastFetch int64) Snapshot {
	if matches == nil {
		matches = []MatchRecord{}
	}
	return Snapshot{
		UpdateTime: updateTime,
		Total:      len(matches),
		Matches:    matches,
		LastFetch:  lastFetch,
	}
}

// EmptySnapshot 首次刷新之前的快照
func EmptySnapshot() Snapshot {
	return NewSnapshot(nil, "", 0)
}
