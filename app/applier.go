package app

import (
	"encoding/binary"

	"github.com/golang/snappy"
)

const maxBatch = 1024

// runWriteApplier is a background routine that handles all write requests.
// Its job is to apply the request to the Raft log and returns the result to
// each writeRequest.
func runWriteApplier(conf Config, m *machine, ra *raftWrap) {
	for {
		// Gather up as many requests as are waiting into a single entry.
		var reqs []*writeRequest
		r := <-m.wrC
		reqs = append(reqs, r)
		var done bool
		for !done {
			select {
			case r := <-m.wrC:
				reqs = append(reqs, r)
				done = len(reqs) == maxBatch
			default:
				done = true
			}
		}
		batch := make([][]string, len(reqs))
		for i, r := range reqs {
			batch[i] = r.args
		}
		data := encodeWriteBatch(batch)

		resps, err := func() ([]applyResp, error) {
			f := ra.Apply(data, 0)
			err := f.Error()
			if err != nil {
				return nil, err
			}
			return f.Response().([]applyResp), nil
		}()
		if err != nil {
			for _, r := range reqs {
				r.err = errRaftConvert(ra, err)
				r.wg.Done()
			}
		} else {
			for i := range reqs {
				reqs[i].resp = resps[i].resp
				reqs[i].err = resps[i].err
				reqs[i].wg.Done()
			}
		}
	}
}

// encodeWriteBatch combines multiple commands into a single snappy encoded
// raft entry using the following binary format:
//
//	(count, cmd...)
//	  - count: uvarint
//	  - cmd: (count, args...)
//	    - count: uvarint
//	    - arg: (count, byte...)
//	      - count: uvarint
func encodeWriteBatch(batch [][]string) []byte {
	var data []byte
	data = binary.AppendUvarint(data, uint64(len(batch)))
	for _, args := range batch {
		data = binary.AppendUvarint(data, uint64(len(args)))
		for _, arg := range args {
			data = binary.AppendUvarint(data, uint64(len(arg)))
			data = append(data, arg...)
		}
	}
	return snappy.Encode(nil, data)
}

// decodeWriteBatch is the inverse of encodeWriteBatch.
func decodeWriteBatch(data []byte) ([][]string, error) {
	packet, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, err
	}
	next := func() (uint64, bool) {
		x, n := binary.Uvarint(packet)
		if n <= 0 {
			return 0, false
		}
		packet = packet[n:]
		return x, true
	}
	count, ok := next()
	if !ok || count > uint64(len(packet)) {
		return nil, ErrCorrupt
	}
	batch := make([][]string, count)
	for i := range batch {
		argc, ok := next()
		if !ok || argc > uint64(len(packet)) {
			return nil, ErrCorrupt
		}
		args := make([]string, argc)
		for j := range args {
			n, ok := next()
			if !ok || n > uint64(len(packet)) {
				return nil, ErrCorrupt
			}
			args[j] = string(packet[:n])
			packet = packet[n:]
		}
		batch[i] = args
	}
	return batch, nil
}
