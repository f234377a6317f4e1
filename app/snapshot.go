package app

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/moontrade/squirrel/logger"
	"github.com/moontrade/squirrel/squirrel"
	"github.com/tidwall/gjson"
)

const (
	snapSignature = "SQRL0001"
	snapHeadSize  = 40
)

// snapHead is the fixed size header at the start of every snapshot file.
//
//	signature [8]byte
//	start     int64
//	ts        int64
//	seed      uint64  machine generator
//	position  uint64  machine generator
//
// It is followed by one codec byte and the compressed JSON body.
type snapHead struct {
	start    int64
	ts       int64
	seed     uint64
	position uint64
}

func (h snapHead) append(dst []byte) []byte {
	dst = append(dst, snapSignature...)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.start))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(h.ts))
	dst = binary.LittleEndian.AppendUint64(dst, h.seed)
	dst = binary.LittleEndian.AppendUint64(dst, h.position)
	return dst
}

func (h snapHead) rng() squirrel.Rng64 {
	return squirrel.WithSeed(h.seed).WithPosition(h.position)
}

func snapshotInit(conf Config, dir string, m *machine, hclogger hclog.Logger) raft.SnapshotStore {
	snaps, err := raft.NewFileSnapshotStoreWithLogger(dir, 3, hclogger)
	if err != nil {
		logger.Fatal(err)
	}
	m.snaps = snaps
	return snaps
}

type fsmSnap struct {
	id      string
	codec   codec
	head    snapHead
	streams []Stream
}

// encodeSnapshot builds a complete snapshot file.
func encodeSnapshot(head snapHead, c codec, streams []Stream) ([]byte, error) {
	body, err := (&snapshotBody{Streams: streams}).marshal(nil)
	if err != nil {
		return nil, err
	}
	body, err = c.encode(body)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, snapHeadSize+1+len(body))
	data = head.append(data)
	data = append(data, byte(c))
	return append(data, body...), nil
}

// decodeSnapshot splits a snapshot file into its header, codec and the
// decompressed JSON body.
func decodeSnapshot(data []byte) (snapHead, codec, []byte, error) {
	var head snapHead
	if len(data) < snapHeadSize+1 {
		return head, 0, nil, fmt.Errorf("%w: short snapshot", ErrCorrupt)
	}
	if string(data[:8]) != snapSignature {
		return head, 0, nil, fmt.Errorf("%w: invalid snapshot signature",
			ErrCorrupt)
	}
	head.start = int64(binary.LittleEndian.Uint64(data[8:]))
	head.ts = int64(binary.LittleEndian.Uint64(data[16:]))
	head.seed = binary.LittleEndian.Uint64(data[24:])
	head.position = binary.LittleEndian.Uint64(data[32:])
	c := codec(data[snapHeadSize])
	if !c.known() {
		return head, c, nil, fmt.Errorf("%w: snapshot codec %s", ErrCorrupt, c)
	}
	body, err := c.decode(data[snapHeadSize+1:])
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			err = fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return head, c, nil, err
	}
	return head, c, body, nil
}

func readSnapshot(rd io.Reader) (snapHead, []Stream, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return snapHead{}, nil, err
	}
	head, _, body, err := decodeSnapshot(data)
	if err != nil {
		return head, nil, err
	}
	var sb snapshotBody
	if err := sb.unmarshal(body); err != nil {
		return head, nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return head, sb.Streams, nil
}

func (s *fsmSnap) Persist(sink raft.SnapshotSink) error {
	s.id = sink.ID()
	data, err := encodeSnapshot(s.head, s.codec, s.streams)
	if err != nil {
		return err
	}
	_, err = sink.Write(data)
	return err
}

func (s *fsmSnap) Release() {
	logger.Debug("id", s.id, "streams", len(s.streams), "snapshot released")
}

// Snapshot copies the machine state. Persist runs concurrently with new
// writes, so nothing in the copy may be shared with the live registry.
func (m *machine) Snapshot() (raft.FSMSnapshot, error) {
	return &fsmSnap{
		codec: m.codec,
		head: snapHead{
			start:    m.start,
			ts:       m.ts,
			seed:     m.rng.Seed(),
			position: m.rng.Position(),
		},
		streams: m.streams.copy(),
	}, nil
}

func (m *machine) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	head, streams, err := readSnapshot(rc)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := m.load(streams); err != nil {
		return err
	}
	m.start = head.start
	m.ts = head.ts
	m.rng = head.rng()
	return nil
}

// readSnapInfo reports on a snapshot file without loading its streams.
func readSnapInfo(id, path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	head, c, body, err := decodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"id":        id,
		"timestamp": fmt.Sprint(head.ts),
		"size":      fmt.Sprint(len(data)),
		"codec":     c.String(),
		"streams":   fmt.Sprint(gjson.GetBytes(body, "streams.#").Int()),
	}, nil
}

type restoreData struct {
	head    snapHead
	streams []Stream
}

func dataDirInit(conf Config) (string, *restoreData) {
	var rdata *restoreData
	dir := filepath.Join(conf.DataDir, conf.Name, conf.NodeID)
	if conf.BackupPath != "" {
		_, err := os.Stat(dir)
		if err == nil {
			logger.Warn("backup restore ignored: "+
				"data directory already exists: path=%s", dir)
			return dir, nil
		}
		logger.Print("restoring backup: path=%s", conf.BackupPath)
		if !os.IsNotExist(err) {
			logger.Fatal(err)
		}
		rdata, err = dataDirRestoreBackup(conf.BackupPath)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Print("recovery successful")
	}
	if err := os.MkdirAll(dir, 0777); err != nil {
		logger.Fatal(err)
	}
	return dir, rdata
}

func dataDirRestoreBackup(path string) (*restoreData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	head, streams, err := readSnapshot(f)
	if err != nil {
		return nil, err
	}
	return &restoreData{head: head, streams: streams}, nil
}

// runLogLoadedPoller is a background routine that reports on raft log progress
// and also maintains the m.logLoaded atomic boolean for open read systems.
func runLogLoadedPoller(conf Config, m *machine, ra *raftWrap, tlscfg *tls.Config) {
	var loaded bool
	var lastPerc string
	lastPrint := time.Now()
	for {
		// load the last index from the cluster leader
		lastIndex, err := getClusterLastIndex(ra, tlscfg, conf.Auth)
		if err != nil {
			if err != errLeaderUnknown {
				logger.Warn("cluster_last_index: %v", err)
			} else {
				// This service is probably a candidate, flip the loaded
				// off to begin printing log progress.
				loaded = false
				atomic.StoreInt32(&m.logLoaded, 0)
			}
			time.Sleep(time.Second)
			continue
		}

		// update machine with the known leader last index and determine
		// the load progress and how many logs are remaining.
		m.mu.Lock()
		m.logRemain = lastIndex - m.appliedIndex
		if lastIndex == 0 || lastIndex == m.firstIndex {
			m.logPercent = 0
		} else {
			m.logPercent = float64(m.appliedIndex-m.firstIndex) /
				float64(lastIndex-m.firstIndex)
		}
		lpercent := m.logPercent
		remain := m.logRemain
		m.mu.Unlock()

		if !loaded {
			perc := fmt.Sprintf("%.1f%%", lpercent*100)
			if remain < 5 {
				logger.Print("logs loaded: ready for commands")
				loaded = true
				atomic.StoreInt32(&m.logLoaded, 1)
			} else if perc != "0.0%" && perc != lastPerc {
				now := time.Now()
				if now.Sub(lastPrint) > time.Second*5 {
					logger.Print("remaining", remain,
						"logs progress: %.1f%%", lpercent*100)
					lastPrint = now
				} else {
					logger.Debug("remaining", remain,
						"logs progress: %.1f%%", lpercent*100)
				}
			}
			lastPerc = perc
		}
		time.Sleep(time.Second / 5)
	}
}
