package app

import (
	"crypto/sha1"
	"encoding/hex"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/moontrade/squirrel/logger"
)

// peerTable holds the latest dial result for each cluster member, keyed by
// the address stored in the raft configuration.
type peerTable struct {
	mu    sync.RWMutex
	peers map[string]peerInfo
}

type peerInfo struct {
	remote   string    // address the member answered from
	seen     time.Time // last successful dial
	failures int       // failed dials since seen
}

func (p peerInfo) reachable() bool {
	return p.failures == 0 && !p.seen.IsZero()
}

// record stores a dial result. It reports true when the member has just
// become unreachable.
func (t *peerTable) record(addr, remote string, err error, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.peers == nil {
		t.peers = make(map[string]peerInfo)
	}
	p := t.peers[addr]
	var lost bool
	if err != nil {
		p.failures++
		lost = p.failures == 1
	} else {
		p.remote = remote
		p.seen = now
		p.failures = 0
	}
	t.peers[addr] = p
	return lost
}

// find looks a member up by its configured address or by the address it
// answered from, and returns the configured address.
func (t *peerTable) find(addr string) (string, peerInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if p, ok := t.peers[addr]; ok {
		return addr, p, true
	}
	for config, p := range t.peers {
		if p.remote == addr {
			return config, p, true
		}
	}
	return "", peerInfo{}, false
}

// serverEntry is one member as reported by RAFT SERVER LIST and the
// CLUSTER commands.
type serverEntry struct {
	id        string
	address   string
	leader    bool
	reachable bool
}

func (e serverEntry) clusterID() string {
	sum := sha1.Sum([]byte(e.id))
	return hex.EncodeToString(sum[:])
}

func (e serverEntry) hostPort() (string, int) {
	host, port, err := net.SplitHostPort(e.address)
	if err != nil {
		return "", 0
	}
	n, _ := strconv.Atoi(port)
	return host, n
}

func (ra *raftWrap) getServerList() ([]serverEntry, error) {
	f := ra.GetConfiguration()
	if err := f.Error(); err != nil {
		return nil, err
	}
	leader := string(ra.Leader())
	servers := f.Configuration().Servers
	entries := make([]serverEntry, 0, len(servers))
	for _, s := range servers {
		e := serverEntry{id: string(s.ID), address: string(s.Address)}
		e.leader = e.address == leader
		_, p, ok := ra.peers.find(e.address)
		// members not dialed yet are assumed to be up
		e.reachable = !ok || p.reachable()
		if ok && p.remote == leader {
			e.leader = true
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// runMaintainServers dials every member once a second. The results map
// the addresses raft reports back to advertised addresses and feed the
// reachable flag of RAFT SERVER LIST.
func runMaintainServers(ra *raftWrap) {
	for {
		f := ra.GetConfiguration()
		if f.Error() == nil {
			var wg sync.WaitGroup
			for _, s := range f.Configuration().Servers {
				wg.Add(1)
				go func(addr string) {
					defer wg.Done()
					ra.dialPeer(addr)
				}(string(s.Address))
			}
			wg.Wait()
		}
		time.Sleep(time.Second)
	}
}

func (ra *raftWrap) dialPeer(addr string) {
	var remote string
	c, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err == nil {
		remote = c.RemoteAddr().String()
		c.Close()
	}
	if ra.peers.record(addr, remote, err, time.Now()) {
		logger.Debug("addr", addr, "err", err, "peer unreachable")
	}
}
