// Package probe performs the two check kinds spec.md §4.4 names: HTTP
// GET and ICMP ping. Grounded on the teacher's probe dispatch in
// agent/internal/worker (protocol switch feeding an http.Client and a
// shell-out pinger), generalized to Storm's Target/CheckResult shapes.
package probe

import (
	"context"
	"time"

	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

// Run dispatches target.Kind to the matching prober and always returns
// a fully-populated CheckResult, timestamped at call time, never an
// error — a failed probe is itself a successful *observation* of
// failure.
func Run(ctx context.Context, target stormapi.Target, agentID, agentName string) stormapi.CheckResult {
	timeout := time.Duration(target.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now()
	var result stormapi.CheckResult
	switch target.Kind {
	case stormapi.TargetICMP:
		result = runICMP(ctx, target, timeout)
	default:
		result = runHTTP(ctx, target, agentName, timeout)
	}
	result.TargetID = target.ID
	result.AgentID = agentID
	result.Timestamp = now
	return result
}

func floatPtr(v float64) *float64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}
