package relay

import (
	"log"
	"time"
)

// =======================
// IDLE REAPER
// =======================

// reapLoop sweeps both session pools on a fixed interval and evicts
// anything silent past its type's timeout. Agents get a shorter window
// than viewers: a silent agent usually means the host is unreachable.
// Stops when the relay is closed.
func (r *Relay) reapLoop() {
	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reapIdle(time.Now())
		case <-r.stop:
			return
		}
	}
}

// reapIdle collects expired ids under the read lock, then removes them
// through the normal teardown paths so all cascade cleanup applies.
func (r *Relay) reapIdle(now time.Time) {
	var viewers, agents []string

	r.mu.RLock()
	for id, v := range r.viewers {
		if now.Sub(v.LastActivity) > r.cfg.ViewerIdleTimeout {
			viewers = append(viewers, id)
		}
	}
	for id, a := range r.agents {
		if now.Sub(a.LastActivity) > r.cfg.AgentIdleTimeout {
			agents = append(agents, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range viewers {
		log.Println("⏰ reaping idle viewer:", id)
		r.RemoveViewer(id)
	}
	for _, id := range agents {
		log.Println("⏰ reaping idle agent:", id)
		r.RemoveAgent(id)
	}
}
