package services

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLarkNotifierDisabled(t *testing.T) {
	n := NewLarkNotifier("")
	if n.Enabled() {
		t.Fatal("Expected notifier to be disabled")
	}
	if err := n.NotifyRefreshFailed(errors.New("x")); err != nil {
		t.Errorf("Expected no-op, got %v", err)
	}
}

func TestLarkNotifierSendsRichText(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Unexpected content type %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewLarkNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2025, 10, 17, 8, 0, 0, 0, time.Local) }

	if err := n.NotifyRefreshFailed(errors.New("HTTP 503")); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if msgType, _ := raw["msg_type"].(string); msgType != "post" {
		t.Errorf("Expected post message, got %q", msgType)
	}
	body, _ := json.Marshal(raw)
	for _, want := range []string{"Refresh Failed", "HTTP 503", "2025-10-17 08:00:00"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected %q in payload %s", want, body)
		}
	}
}

func TestLarkNotifierStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewLarkNotifier(srv.URL).SendText("hi")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestLarkNotifierServiceStartLinksSource(t *testing.T) {
	var msg struct {
		Content LarkPostContent `json:"content"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&msg)
	}))
	defer srv.Close()

	n := NewLarkNotifier(srv.URL)
	if err := n.NotifyServiceStart("2.0", "5000", "https://zqbaba.org"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	var link *LarkElement
	for _, line := range msg.Content.Post.ZhCn.Content {
		for i := range line {
			if line[i].Tag == "a" {
				link = &line[i]
			}
		}
	}
	if link == nil || link.Href != "https://zqbaba.org" {
		t.Fatalf("Expected source link, got %+v", msg.Content.Post.ZhCn.Content)
	}

	rows := msg.Content.Post.ZhCn.Content
	if last := rows[len(rows)-1]; !strings.HasPrefix(last[0].Text, "时间: ") {
		t.Errorf("Expected time on the last row, got %+v", last)
	}
}

func TestLarkNotifierServiceStop(t *testing.T) {
	var raw map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
	}))
	defer srv.Close()

	n := NewLarkNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2025, 10, 17, 8, 0, 0, 0, time.Local) }
	if err := n.NotifyServiceStop(); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if raw["msg_type"] != "text" {
		t.Errorf("Expected text message, got %v", raw["msg_type"])
	}
	content, _ := raw["content"].(map[string]interface{})
	if text, _ := content["text"].(string); !strings.Contains(text, "2025-10-17 08:00:00") {
		t.Errorf("Unexpected text %q", text)
	}
}
