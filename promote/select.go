package promote

import (
	"math/rand/v2"
	"time"

	"github.com/onnwee/autovoice/members"
)

// Select returns the first member of snapshot that has been present for
// longer than cooldown. Store snapshots are ordered oldest first, so this is
// the longest-waiting eligible member.
func Select(snapshot []members.Member, cooldown time.Duration, now time.Time) (string, bool) {
	for _, m := range snapshot {
		if now.Sub(m.JoinedAt) > cooldown {
			return m.Nick, true
		}
	}
	return "", false
}

// Jitter is the range of the randomized pause between consecutive promotions.
type Jitter struct {
	Min time.Duration
	Max time.Duration
}

// DefaultJitter spaces promotions 100-250ms apart.
var DefaultJitter = Jitter{Min: 100 * time.Millisecond, Max: 250 * time.Millisecond}

// Next returns a uniformly random duration in [Min, Max).
func (j Jitter) Next() time.Duration {
	if j.Max <= j.Min {
		return max(j.Min, 0)
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	return j.Min + time.Duration(rand.Int64N(int64(j.Max-j.Min)))
}
