package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestComponentPrefix(t *testing.T) {
	var info, errOut bytes.Buffer
	SetOutput(&info, &errOut)
	defer SetOutput(os.Stdout, os.Stderr)

	l := New("Cache")
	l.Printf("refreshed %d matches", 3)
	l.Errorf("fetch failed: %s", "timeout")

	if !strings.Contains(info.String(), "[Cache] refreshed 3 matches") {
		t.Errorf("Expected prefixed info line, got %q", info.String())
	}
	if !strings.Contains(errOut.String(), "[Cache] fetch failed: timeout") {
		t.Errorf("Expected prefixed error line, got %q", errOut.String())
	}
}
