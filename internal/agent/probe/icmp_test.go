package probe

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

func TestParsePingRTTLinuxForm(t *testing.T) {
	output := "64 bytes from 1.1.1.1: icmp_seq=1 ttl=58 time=12.3 ms"
	if got := parsePingRTT(output); got != 12.3 {
		t.Errorf("parsePingRTT() = %v, want 12.3", got)
	}
}

func TestParsePingRTTWindowsForm(t *testing.T) {
	output := "Reply from 1.1.1.1: bytes=32 time=45ms TTL=58"
	if got := parsePingRTT(output); got != 45 {
		t.Errorf("parsePingRTT() = %v, want 45", got)
	}
}

func TestParsePingRTTBareMsForm(t *testing.T) {
	output := "round-trip 8.21ms"
	if got := parsePingRTT(output); got != 8.21 {
		t.Errorf("parsePingRTT() = %v, want 8.21", got)
	}
}

func TestParsePingRTTUnparsableReturnsZero(t *testing.T) {
	if got := parsePingRTT("Request timed out."); got != 0 {
		t.Errorf("parsePingRTT() = %v, want 0 for unparsable output", got)
	}
}

func TestPosixPingTimeoutSecondsRoundsUp(t *testing.T) {
	cases := []struct {
		timeout time.Duration
		want    int
	}{
		{1200 * time.Millisecond, 2},
		{2 * time.Second, 2},
		{2100 * time.Millisecond, 3},
		{0, 1},
		{500 * time.Millisecond, 1},
	}
	for _, c := range cases {
		if got := posixPingTimeoutSeconds(c.timeout); got != c.want {
			t.Errorf("posixPingTimeoutSeconds(%v) = %d, want %d", c.timeout, got, c.want)
		}
	}
}

func TestRunICMPLoopback(t *testing.T) {
	if _, err := exec.LookPath("ping"); err != nil {
		t.Skip("ping utility not available in this environment")
	}
	target := stormapi.Target{ID: 1, Kind: stormapi.TargetICMP, Endpoint: "127.0.0.1", IntervalMs: 60000, TimeoutMs: 3000}
	result := Run(context.Background(), target, "a1", "agent-1")
	if !result.Success {
		t.Errorf("expected a successful ping to loopback, got error=%q", result.ErrorText)
	}
	if result.ResponseTimeMs == nil {
		t.Errorf("expected a response time to be recorded")
	}
}
