package app

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/raft"
	"github.com/moontrade/squirrel/logger"
	"github.com/moontrade/squirrel/squirrel"
)

func machineInit(conf Config, dir string, rdata *restoreData) *machine {
	m := newMachine(conf, dir)
	if rdata != nil {
		m.start = rdata.head.start
		m.ts = rdata.head.ts
		m.rng = rdata.head.rng()
		if err := m.load(rdata.streams); err != nil {
			logger.Fatal(err)
		}
	}
	return m
}

func newMachine(conf Config, dir string) *machine {
	m := new(machine)
	m.dir = dir
	m.vers = versline(conf)
	m.tickedSig = sync.NewCond(&m.mu)
	m.created = time.Now().UnixNano()
	m.wrC = make(chan *writeRequest, maxBatch)
	m.tickDelay = conf.TickDelay
	m.openReads = conf.OpenReads
	m.width = conf.DefaultWidth
	m.maxDraws = conf.MaxDraws
	m.codec, _ = parseCodec(conf.SnapshotCodec)
	m.commands = commandTable(conf)
	return m
}

type machine struct {
	snaps     raft.SnapshotStore //
	dir       string             //
	vers      string             // version line
	created   int64              // machine instance created timestamp
	commands  map[string]command // command table
	openReads bool               // open reads on by default
	tickDelay time.Duration      // ticker delay
	width     int                // default stream width
	maxDraws  int                // max values per command
	codec     codec              // snapshot codec

	mu           sync.RWMutex   // protect all things in group
	firstIndex   uint64         // first applied index
	appliedIndex uint64         // last applied index (stable state)
	readers      int32          // (atomic counter) number of current readers
	tickedIndex  uint64         // index of last tick
	tickedTerm   uint64         // term of last tick
	tickedSig    *sync.Cond     // signal when ticked
	logPercent   float64        // percentage of log loaded
	logRemain    uint64         // non-applied log entries
	logLoaded    int32          // (atomic bool) log is loaded, allow open reads
	snap         bool           // snapshot in progress
	start        int64          // !! PERSISTED !! first non-zero timestamp
	ts           int64          // !! PERSISTED !! current timestamp
	rng          squirrel.Rng64 // !! PERSISTED !! machine generator
	streams      registry       // !! PERSISTED !! named streams

	wrC chan *writeRequest
}

type applyResp struct {
	resp interface{}
	err  error
}

func (m *machine) Apply(l *raft.Log) interface{} {
	batch, err := decodeWriteBatch(l.Data)
	if err != nil {
		logger.Panic(fmt.Errorf("invalid apply: %w", err))
	}
	m.mu.Lock()
	defer func() {
		m.appliedIndex = l.Index
		if m.firstIndex == 0 {
			m.firstIndex = m.appliedIndex
		}
		m.mu.Unlock()
	}()
	resps := make([]applyResp, len(batch))
	for i, args := range batch {
		if len(args) == 0 {
			continue
		}
		cmdName := strings.ToLower(args[0])
		cmd := m.commands[cmdName]
		if cmd.kind != 'w' {
			logger.Panic(fmt.Errorf("invalid apply '%c', command: '%s'",
				cmd.kind, cmdName))
		}
		tick := cmdName == "tick"
		if m.start == 0 && !tick {
			// This is in fact the leader, but because the machine has yet
			// to receive a valid tick command, we'll treat this as if the
			// server *is not* the leader.
			resps[i] = applyResp{nil, raft.ErrNotLeader}
			continue
		}
		res, err := cmd.fn(m, nil, args)
		if tick {
			// return only the index and term
			res = raft.Log{Index: l.Index, Term: l.Term}
		}
		resps[i] = applyResp{res, err}
	}
	return resps
}

// Now returns the machine time. It is synced with internet time by the
// ticker and always increases across write commands. Inside read commands
// it returns the last known value.
func (m *machine) Now() time.Time {
	ts := m.ts
	if atomic.LoadInt32(&m.readers) == 0 {
		m.ts++
	}
	return time.Unix(0, ts).UTC()
}

// load replaces all streams.
func (m *machine) load(streams []Stream) error {
	m.streams.reset()
	for _, s := range streams {
		if _, err := m.streams.Create(s.Name, s.Bits, s.Seed, s.Position); err != nil {
			return fmt.Errorf("%w: stream %q: %v", ErrCorrupt, s.Name, err)
		}
	}
	return nil
}
