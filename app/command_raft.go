package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/raft"
	"github.com/tidwall/match"
	"github.com/tidwall/redcon"
)

var raftCommands = map[string]command{
	"help":     {'s', cmdRAFTHELP},
	"info":     {'s', cmdRAFTINFO},
	"leader":   {'s', cmdRAFTLEADER},
	"snapshot": {'s', cmdRAFTSNAPSHOT},
	"server":   {'s', cmdRAFTSERVER},
}

var clusterCommands = map[string]command{
	"help":  {'s', cmdCLUSTERHELP},
	"info":  {'s', cmdCLUSTERINFO},
	"slots": {'s', cmdCLUSTERSLOTS},
	"nodes": {'s', cmdCLUSTERNODES},
}

// RAFT subcommand args...
// help: calls a system-level raft operation.
func cmdRAFT(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, errWrongNumArgsRaft
	}
	args[1] = strings.ToLower(args[1])
	rcmd, ok := raftCommands[args[1]]
	if !ok {
		return nil, errUnknownRaftCommand(args[:2])
	}
	return rcmd.fn(m, ra, args)
}

// CLUSTER subcommand args...
// help: calls a system-level cluster operation.
func cmdCLUSTER(m *machine, ra *raftWrap, args []string) (interface{}, error) {
	if len(args) < 2 {
		return nil, errWrongNumArgsCluster
	}
	args[1] = strings.ToLower(args[1])
	rcmd, ok := clusterCommands[args[1]]
	if !ok {
		return nil, errUnknownClusterCommand(args[:2])
	}
	return rcmd.fn(m, ra, args)
}

// RAFT HELP
// help: returns the valid RAFT related commands; []string
func cmdRAFTHELP(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongNumArgsRaft
	}
	lines := []redcon.SimpleString{
		"RAFT LEADER",
		"RAFT INFO [pattern]",

		"RAFT SERVER LIST",
		"RAFT SERVER ADD id address",
		"RAFT SERVER REMOVE id",

		"RAFT SNAPSHOT NOW",
		"RAFT SNAPSHOT LIST",
		"RAFT SNAPSHOT FILE id",
		"RAFT SNAPSHOT READ id [RANGE offset limit]",
	}
	return lines, nil
}

// RAFT LEADER
// help: returns the current leader; string
func cmdRAFTLEADER(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongNumArgsRaft
	}
	return getLeaderAdvertiseAddr(ra), nil
}

// RAFT INFO [pattern]
// help: returns various raft related info; map[string]string
func cmdRAFTINFO(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	pattern := "*"
	switch len(args) {
	case 2:
	case 3:
		pattern = args[2]
	default:
		return nil, errWrongNumArgsRaft
	}
	if pattern == "state" {
		// Fast path to avoid locks. Under the hood there's only a single
		// atomic load
		return []string{"state", ra.State().String()}, nil
	}

	stats := ra.Stats()
	m.mu.RLock()
	behind := m.logRemain
	percent := m.logPercent
	m.mu.RUnlock()
	stats["logs_behind"] = fmt.Sprint(behind)
	stats["logs_loaded_percent"] = fmt.Sprintf("%0.1f", percent*100)
	final := make(map[string]string)
	for key, value := range stats {
		if match.Match(key, pattern) {
			final[key] = value
		}
	}
	return final, nil
}

// RAFT SERVER LIST|ADD|REMOVE
func cmdRAFTSERVER(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) < 3 {
		return nil, errWrongNumArgsRaft
	}
	switch strings.ToLower(args[2]) {
	case "list":
		return cmdRAFTSERVERLIST(m, ra, args)
	case "add":
		return cmdRAFTSERVERADD(m, ra, args)
	case "remove":
		return cmdRAFTSERVERREMOVE(m, ra, args)
	}
	return nil, errUnknownRaftCommand(args[1:3])
}

// RAFT SERVER LIST
// help: returns a list of the servers in the cluster
func cmdRAFTSERVERLIST(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 3 {
		return nil, errWrongNumArgsRaft
	}
	servers, err := ra.getServerList()
	if err != nil {
		return nil, errRaftConvert(ra, err)
	}
	var res [][]string
	for _, s := range servers {
		res = append(res, []string{
			"id", s.id,
			"address", s.address,
			"leader", fmt.Sprint(s.leader),
			"reachable", fmt.Sprint(s.reachable),
		})
	}
	return res, nil
}

// RAFT SERVER ADD id address
// help: Returns true if server added, or error; bool
func cmdRAFTSERVERADD(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 5 {
		return nil, errWrongNumArgsRaft
	}
	err := ra.AddVoter(raft.ServerID(args[3]), raft.ServerAddress(args[4]),
		0, 0).Error()
	if err != nil {
		return nil, errRaftConvert(ra, err)
	}
	return true, nil
}

// RAFT SERVER REMOVE id
// help: removes a server from the cluster; bool
func cmdRAFTSERVERREMOVE(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 4 {
		return nil, errWrongNumArgsRaft
	}
	err := ra.RemoveServer(raft.ServerID(args[3]), 0, 0).Error()
	if err != nil {
		return nil, errRaftConvert(ra, err)
	}
	return true, nil
}

// RAFT SNAPSHOT NOW|LIST|FILE|READ
func cmdRAFTSNAPSHOT(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) < 3 {
		return nil, errWrongNumArgsRaft
	}
	switch strings.ToLower(args[2]) {
	case "now":
		return cmdRAFTSNAPSHOTNOW(m, ra, args)
	case "list":
		return cmdRAFTSNAPSHOTLIST(m, ra, args)
	case "read":
		return cmdRAFTSNAPSHOTREAD(m, ra, args)
	case "file":
		return cmdRAFTSNAPSHOTFILE(m, ra, args)
	}
	return nil, errUnknownRaftCommand(args[1:3])
}

// snapPath returns the data file of a snapshot. Ids are single path
// elements as created by the raft file snapshot store.
func (m *machine) snapPath(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: snapshot id '%s'", ErrInvalid, id)
	}
	return filepath.Join(m.dir, "snapshots", id, "state.bin"), nil
}

// RAFT SNAPSHOT NOW
// help: takes a snapshot of the data and returns information relating to the
//       resulting snapshot; map[string]string
func cmdRAFTSNAPSHOTNOW(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 3 {
		return nil, errWrongNumArgsRaft
	}
	m.mu.Lock()
	if m.snap {
		m.mu.Unlock()
		return nil, errors.New("in progress")
	}
	m.snap = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.snap = false
		m.mu.Unlock()
	}()
	f := ra.Snapshot()
	if err := f.Error(); err != nil {
		return nil, err
	}
	meta, rd, err := f.Open()
	if err != nil {
		return nil, err
	}
	if err := rd.Close(); err != nil {
		return nil, err
	}
	path, err := m.snapPath(meta.ID)
	if err != nil {
		return nil, err
	}
	return readSnapInfo(meta.ID, path)
}

// RAFT SNAPSHOT LIST
// help: returns a list of the current snapshots on disk. []map[string]string
func cmdRAFTSNAPSHOTLIST(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 3 {
		return nil, errWrongNumArgsRaft
	}
	list, err := m.snaps.List()
	if err != nil {
		return nil, err
	}
	snaps := []map[string]string{}
	for _, meta := range list {
		snaps = append(snaps, m.snapInfo(meta.ID))
	}
	return snaps, nil
}

// snapInfo reports on one snapshot. A snapshot that cannot be read is
// listed with its error so the rest of the list stays usable.
func (m *machine) snapInfo(id string) map[string]string {
	path, err := m.snapPath(id)
	if err == nil {
		var info map[string]string
		if info, err = readSnapInfo(id, path); err == nil {
			return info
		}
	}
	return map[string]string{"id": id, "error": err.Error()}
}

// RAFT SNAPSHOT FILE id
// help: returns the path to the snapshot file; string
func cmdRAFTSNAPSHOTFILE(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 4 {
		return nil, errWrongNumArgsRaft
	}
	path, err := m.snapPath(args[3])
	if err != nil {
		return nil, err
	}
	return filepath.Abs(path)
}

// RAFT SNAPSHOT READ id [RANGE offset limit]
// help: reads the contents of a snapshot file; []byte
func cmdRAFTSNAPSHOTREAD(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	var offset, limit int64
	all := true
	switch len(args) {
	case 4:
	case 7:
		if strings.ToLower(args[4]) != "range" {
			return nil, ErrSyntax
		}
		var err error
		offset, err = strconv.ParseInt(args[5], 10, 64)
		if err != nil {
			return nil, ErrSyntax
		}
		limit, err = strconv.ParseInt(args[6], 10, 64)
		if err != nil {
			return nil, ErrSyntax
		}
		if offset < 0 || limit <= 0 {
			return nil, ErrSyntax
		}
		all = false
	default:
		return nil, errWrongNumArgsRaft
	}
	path, err := m.snapPath(args[3])
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if all {
		return io.ReadAll(f)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, err
	}
	return io.ReadAll(io.LimitReader(f, limit))
}

// CLUSTER HELP
// help: returns the valid CLUSTER related commands; []string
func cmdCLUSTERHELP(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	if len(args) != 2 {
		return nil, errWrongNumArgsCluster
	}
	lines := []redcon.SimpleString{
		"CLUSTER INFO",
		"CLUSTER NODES",
		"CLUSTER SLOTS",
	}
	return lines, nil
}

// CLUSTER INFO
// help: returns various redis cluster info; string
func cmdCLUSTERINFO(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	slist, err := ra.getServerList()
	if err != nil {
		return nil, errRaftConvert(ra, err)
	}
	size := len(slist)
	epoch := ra.LastIndex()
	return fmt.Sprintf(""+
		"cluster_state:ok\n"+
		"cluster_slots_assigned:16384\n"+
		"cluster_slots_ok:16384\n"+
		"cluster_slots_pfail:0\n"+
		"cluster_slots_fail:0\n"+
		"cluster_known_nodes:%d\n"+
		"cluster_size:%d\n"+
		"cluster_current_epoch:%d\n"+
		"cluster_my_epoch:%d\n"+
		"cluster_stats_messages_sent:0\n"+
		"cluster_stats_messages_received:0\n",
		size, size, epoch, epoch,
	), nil
}

func clusterLeader(ra *raftWrap) ([]serverEntry, serverEntry, error) {
	slist, err := ra.getServerList()
	if err != nil {
		return nil, serverEntry{}, errRaftConvert(ra, err)
	}
	for _, server := range slist {
		if server.leader {
			return slist, server, nil
		}
	}
	return nil, serverEntry{}, errors.New("CLUSTERDOWN The cluster is down")
}

// CLUSTER SLOTS
// help: returns the cluster slots, which is always all slots being assigned
// to the leader.
func cmdCLUSTERSLOTS(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	_, leader, err := clusterLeader(ra)
	if err != nil {
		return nil, err
	}
	host, port := leader.hostPort()
	return []interface{}{
		[]interface{}{
			redcon.SimpleInt(0),
			redcon.SimpleInt(16383),
			[]interface{}{
				host,
				redcon.SimpleInt(port),
				leader.clusterID(),
			},
		},
	}, nil
}

// CLUSTER NODES
// help: returns the cluster nodes
func cmdCLUSTERNODES(m *machine, ra *raftWrap, args []string,
) (interface{}, error) {
	slist, leader, err := clusterLeader(ra)
	if err != nil {
		return nil, err
	}
	leaderID := leader.clusterID()
	var result strings.Builder
	for _, server := range slist {
		flags := "slave"
		followerOf := leaderID
		if server.leader {
			flags = "master"
			followerOf = "-"
		}
		host, port := server.hostPort()
		fmt.Fprintf(&result, "%s %s:%d@%d %s %s 0 0 connected 0-16383\n",
			server.clusterID(),
			host, port, port,
			flags, followerOf,
		)
	}
	return result.String(), nil
}
