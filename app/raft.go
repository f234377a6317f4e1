package app

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/moontrade/squirrel/logger"
)

var errLeaderUnknown = errors.New("leader unknown")

type raftWrap struct {
	*raft.Raft
	conf      Config
	advertise string
	peers     peerTable
}

func raftConfig(conf Config, hclogger hclog.Logger) *raft.Config {
	return &raft.Config{
		ProtocolVersion:    raft.ProtocolVersionMax,
		HeartbeatTimeout:   2000 * time.Millisecond,
		ElectionTimeout:    2000 * time.Millisecond,
		CommitTimeout:      200 * time.Millisecond,
		MaxAppendEntries:   maxBatch,
		ShutdownOnRemove:   true,
		TrailingLogs:       10240,
		SnapshotInterval:   120 * time.Second,
		SnapshotThreshold:  8192,
		LeaderLeaseTimeout: 1000 * time.Millisecond,
		LogLevel:           "WARN",
		Logger:             hclogger,
		LocalID:            raft.ServerID(conf.NodeID),
	}
}

func raftInit(conf Config, hclogger hclog.Logger, fsm raft.FSM,
	logStore raft.LogStore, stableStore raft.StableStore,
	snaps raft.SnapshotStore, trans raft.Transport,
) *raftWrap {
	rconf := raftConfig(conf, hclogger)
	if err := raft.ValidateConfig(rconf); err != nil {
		logger.Fatal(err)
	}
	ra, err := raft.NewRaft(rconf, fsm, logStore, stableStore, snaps, trans)
	if err != nil {
		logger.Fatal(err)
	}
	return &raftWrap{
		Raft:      ra,
		conf:      conf,
		advertise: conf.Advertise,
	}
}

func getLeaderAdvertiseAddr(ra *raftWrap) string {
	leader := string(ra.Leader())
	if ra.advertise == "" || leader == "" {
		return leader
	}
	addr, _, ok := ra.peers.find(leader)
	if !ok {
		return ""
	}
	return addr
}

// errRaftConvert turns raft leadership errors into redirects that cluster
// aware clients understand.
func errRaftConvert(ra *raftWrap, err error) error {
	if ra.conf.TryErrors {
		if err == raft.ErrNotLeader {
			if leader := getLeaderAdvertiseAddr(ra); leader != "" {
				return fmt.Errorf("TRY %s", leader)
			}
		}
		return err
	}
	switch err {
	case raft.ErrNotLeader, raft.ErrLeadershipLost,
		raft.ErrLeadershipTransferInProgress:
		if leader := getLeaderAdvertiseAddr(ra); leader != "" {
			return fmt.Errorf("MOVED 0 %s", leader)
		}
		fallthrough
	case raft.ErrRaftShutdown, raft.ErrTransportShutdown:
		return fmt.Errorf("CLUSTERDOWN %s", err)
	}
	return err
}

// joinClusterIfNeeded bootstraps a new single node cluster, joins the
// cluster at conf.JoinAddr, or verifies the membership of an existing node.
func joinClusterIfNeeded(conf Config, ra *raftWrap, addr net.Addr, tlscfg *tls.Config) {
	f := ra.GetConfiguration()
	if err := f.Error(); err != nil {
		logger.Fatal(fmt.Errorf("could not get raft configuration: %w", err))
	}
	self := addr.String()
	if ra.advertise != "" {
		self = conf.Advertise
	}
	servers := f.Configuration().Servers
	switch {
	case len(servers) == 0 && conf.JoinAddr == "":
		logger.Notice("bootstrapping new cluster")
		var cfg raft.Configuration
		cfg.Servers = []raft.Server{{
			Suffrage: raft.Voter,
			ID:       raft.ServerID(conf.NodeID),
			Address:  raft.ServerAddress(self),
		}}
		err := ra.BootstrapCluster(cfg).Error()
		if err != nil && err != raft.ErrCantBootstrap {
			logger.Fatal(fmt.Errorf("bootstrap: %w", err))
		}
	case len(servers) == 0:
		logger.Notice("joining existing cluster at %v", conf.JoinAddr)
		if err := joinCluster(conf, self, tlscfg); err != nil {
			logger.Fatal(fmt.Errorf("raft server add: %w", err))
		}
	default:
		if conf.JoinAddr != "" {
			logger.Warn("ignoring join request because server already " +
				"belongs to a cluster")
		}
		if err := checkAdvertise(conf.NodeID, ra.advertise, servers); err != nil {
			logger.Fatal(err)
		}
	}
}

// joinCluster asks the leader to add this node, following MOVED redirects.
func joinCluster(conf Config, self string, tlscfg *tls.Config) error {
	joinAddr := conf.JoinAddr
	for {
		res, err := func() (string, error) {
			conn, err := RedisDial(joinAddr, conf.Auth, tlscfg)
			if err != nil {
				return "", err
			}
			defer conn.Close()
			return redis.String(conn.Do("raft", "server", "add",
				conf.NodeID, self))
		}()
		if err != nil {
			if strings.HasPrefix(err.Error(), "MOVED ") {
				parts := strings.Split(err.Error(), " ")
				if len(parts) == 3 {
					joinAddr = parts[2]
					time.Sleep(time.Millisecond * 100)
					continue
				}
			}
			return err
		}
		if res != "1" {
			return fmt.Errorf("expected '1', got '%s'", res)
		}
		return nil
	}
}

// checkAdvertise fails when a restarted node advertises a different address
// than the one stored in the cluster configuration.
func checkAdvertise(nodeID, advertise string, servers []raft.Server) error {
	if advertise == "" {
		return nil
	}
	for _, s := range servers {
		if string(s.ID) != nodeID {
			continue
		}
		if string(s.Address) != advertise {
			return fmt.Errorf("advertise address change from \"%s\" to \"%s\"",
				s.Address, advertise)
		}
		return nil
	}
	return errors.New("advertise address changed but node not found")
}

func getClusterLastIndex(ra *raftWrap, tlscfg *tls.Config, auth string,
) (uint64, error) {
	if ra.State() == raft.Leader {
		return ra.LastIndex(), nil
	}
	addr := getLeaderAdvertiseAddr(ra)
	if addr == "" {
		return 0, errLeaderUnknown
	}
	conn, err := RedisDial(addr, auth, tlscfg)
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	args, err := redis.Strings(conn.Do("raft", "info", "last_log_index"))
	if err != nil {
		return 0, err
	}
	if len(args) != 2 {
		return 0, errors.New("invalid response")
	}
	return strconv.ParseUint(args[1], 10, 64)
}
