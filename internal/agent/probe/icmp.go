package probe

import (
	"context"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

// pingTimeRe matches the round-trip time a platform ping utility
// prints, in either "time=12.3 ms" or "12.3ms" form.
var pingTimeRe = regexp.MustCompile(`time[=<]?\s*([0-9.]+)\s*ms|([0-9.]+)\s*ms`)

// runICMP shells out to the platform ping utility, per spec.md §4.4:
// one echo, timeout rounded up to whole seconds on POSIX / milliseconds
// on Windows, success = process exit 0. The round-trip time is parsed
// from stdout; if unparsable, wall-clock elapsed time is used instead.
func runICMP(ctx context.Context, target stormapi.Target, timeout time.Duration) stormapi.CheckResult {
	start := time.Now()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		ms := timeout.Milliseconds()
		if ms <= 0 {
			ms = 1000
		}
		cmd = exec.CommandContext(ctx, "ping", "-n", "1", "-w", strconv.FormatInt(ms, 10), target.Endpoint)
	} else {
		secs := posixPingTimeoutSeconds(timeout)
		cmd = exec.CommandContext(ctx, "ping", "-c", "1", "-W", strconv.Itoa(secs), target.Endpoint)
	}

	out, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	success := err == nil
	if ctx.Err() != nil {
		return stormapi.CheckResult{
			Success:        false,
			ResponseTimeMs: floatPtr(float64(elapsed.Milliseconds())),
			ErrorText:      "ping timed out",
		}
	}

	rtt := parsePingRTT(string(out))
	if rtt <= 0 {
		rtt = float64(elapsed.Milliseconds())
	}

	result := stormapi.CheckResult{
		Success:        success,
		ResponseTimeMs: floatPtr(rtt),
	}
	if !success {
		result.ErrorText = strings.TrimSpace(string(out))
	}
	return result
}

// posixPingTimeoutSeconds rounds timeout up to whole seconds (ping -W
// takes only whole seconds), per spec.md §4.4. A sub-second timeout
// must never round down to 0 and shorten the effective deadline.
func posixPingTimeoutSeconds(timeout time.Duration) int {
	secs := int((timeout + time.Second - 1) / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return secs
}

func parsePingRTT(output string) float64 {
	m := pingTimeRe.FindStringSubmatch(output)
	if m == nil {
		return 0
	}
	raw := m[1]
	if raw == "" {
		raw = m[2]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
