package dispatch

import (
	"context"

	"github.com/Dclef/renpybox-sub001/internal/provider"
	"github.com/Dclef/renpybox-sub001/pkg/log"
)

const (
	localDefaultWorkers  = 8
	remoteDefaultWorkers = 2
	localSafetyCap       = 8
	remoteSafetyCap      = 3
)

// SlotProber asks a server for its parallel capacity.
type SlotProber func(ctx context.Context, apiURL string) (int, error)

// ComputeWorkerCount sizes the dispatch pool. Self-hosted servers are
// asked directly for their slot count when no explicit count is set;
// otherwise the count falls back to endpoint-class defaults, optionally
// capped by a requests-per-minute budget. The result is always at least 1.
func ComputeWorkerCount(ctx context.Context, apiURL string, explicit, rateCap int, probe SlotProber) int {
	if probe == nil {
		probe = provider.ProbeSlots
	}
	local := provider.IsLocalEndpoint(apiURL)

	if local && explicit == 0 {
		if n, err := probe(ctx, apiURL); err == nil && n > 0 {
			log.Info("worker count %d from server slot probe", n)
			return n
		} else if err != nil {
			log.Debug("slot probe failed, using defaults: %v", err)
		}
	}
	if explicit > 0 {
		return explicit
	}
	if rateCap > 0 {
		safety := remoteSafetyCap
		if local {
			safety = localSafetyCap
		}
		n := min(rateCap/60, safety)
		return max(n, 1)
	}
	if local {
		return localDefaultWorkers
	}
	return remoteDefaultWorkers
}
