package update

import (
	"time"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
)

// envLastUpdatedOrNow preserves an existing envelope's last_updated across
// a run that doesn't conceptually refresh every record (delete), falling
// back to now if it's missing or unparsable.
func envLastUpdatedOrNow(env catalog.Envelope) time.Time {
	t, err := time.Parse(time.RFC3339, env.Meta.LastUpdated)
	if err != nil {
		return time.Now()
	}
	return t
}
