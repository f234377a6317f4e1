package app

import (
	"strconv"
	"time"

	"github.com/hashicorp/raft"
	"github.com/moontrade/squirrel/logger"
	"github.com/moontrade/squirrel/squirrel"
)

// runTicker is a background routine that keeps the raft machine time and
// the machine generator seed updated.
func runTicker(conf Config, rt *remoteTime, m *machine, ra *raftWrap) {
	for {
		start := time.Now()
		resp, err := m.submit(tickArgs(m, rt.Now().UnixNano(), squirrel.OS)).wait()
		m.mu.Lock()
		if err == nil {
			l := resp.(raft.Log)
			m.tickedIndex = l.Index
			m.tickedTerm = l.Term
		} else {
			if m.tickedIndex != 0 {
				logger.Debug("tick: %v", err)
			}
			m.tickedIndex = 0
			m.tickedTerm = 0
		}
		m.tickedSig.Broadcast()
		m.mu.Unlock()
		dur := time.Since(start)
		delay := m.tickDelay - dur
		if delay < 1 {
			delay = 1
		}
		time.Sleep(delay)
	}
}

// tickArgs builds the next TICK command. The timestamp is pushed past the
// machine time when the clock is behind it, and the seed is redrawn until
// it differs from the current one.
func tickArgs(m *machine, ts int64, entropy squirrel.Source) []string {
	m.mu.RLock()
	if ts <= m.ts {
		ts = m.ts + 1
	}
	current := m.rng.Seed()
	m.mu.RUnlock()
	seed := entropy.Uint64()
	for seed == current {
		seed = entropy.Uint64()
	}
	return []string{
		"tick",
		strconv.FormatInt(ts, 10),
		strconv.FormatUint(seed, 10),
	}
}
