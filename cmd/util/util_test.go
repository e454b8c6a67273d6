package util

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/rKV/rpc/common"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line longer than %d characters: %q", Wrap, line)
		}
	}
	if got := WrapString("short text"); got != "short text" {
		t.Errorf("expected short text to stay on one line, got %q", got)
	}
}

func TestGetServerTransport(t *testing.T) {
	for _, tt := range []common.TransportType{common.TransportTCP, common.TransportUnix, common.TransportWebsocket} {
		if tr, err := GetServerTransport(tt); err != nil || tr == nil {
			t.Errorf("GetServerTransport(%q) failed: %v", tt, err)
		}
	}
	if _, err := GetServerTransport("http"); err == nil {
		t.Errorf("expected an error for an unknown transport")
	}
}
