package probe

import (
	"net/http"
	"time"

	"context"

	"github.com/iRazvan2745/Storm/pkg/stormapi"
)

// runHTTP issues a GET against target.Endpoint, per spec.md §4.4:
// success is any 2xx/3xx response within the timeout; a timeout
// synthesises statusCode 408, any other transport error synthesises
// statusCode 0.
func runHTTP(ctx context.Context, target stormapi.Target, agentName string, timeout time.Duration) stormapi.CheckResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.Endpoint, nil)
	if err != nil {
		return stormapi.CheckResult{
			Success:    false,
			StatusCode: intPtr(0),
			ErrorText:  err.Error(),
		}
	}
	req.Header.Set("User-Agent", "Storm/"+agentName)

	client := &http.Client{
		Timeout:       timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return stormapi.CheckResult{
				Success:        false,
				ResponseTimeMs: floatPtr(float64(elapsed.Milliseconds())),
				StatusCode:     intPtr(http.StatusRequestTimeout),
				ErrorText:      "request timed out",
			}
		}
		return stormapi.CheckResult{
			Success:        false,
			ResponseTimeMs: floatPtr(float64(elapsed.Milliseconds())),
			StatusCode:     intPtr(0),
			ErrorText:      err.Error(),
		}
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 400
	return stormapi.CheckResult{
		Success:        success,
		ResponseTimeMs: floatPtr(float64(elapsed.Milliseconds())),
		StatusCode:     intPtr(resp.StatusCode),
	}
}
