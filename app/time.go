package app

import (
	"sync"
	"time"

	"github.com/moontrade/squirrel/logger"
	"github.com/tidwall/rtime"
)

const remoteSyncInterval = time.Minute

// remoteTime is the clock behind the machine time. It follows internet time
// when it is reachable and the local clock otherwise.
type remoteTime struct {
	mu     sync.Mutex
	remote bool
	rtime  time.Time // last remote reading
	ltime  time.Time // local time of that reading
	now    func() time.Time
}

func remoteTimeInit(conf Config) *remoteTime {
	rt := &remoteTime{now: rtime.Now}
	if conf.LocalTime {
		logger.Warn("using local time")
		return rt
	}
	if !rt.sync() {
		logger.Warn("internet time unavailable, using local time until synced")
	}
	go func() {
		for {
			time.Sleep(remoteSyncInterval)
			rt.sync()
		}
	}()
	return rt
}

// sync takes a fresh remote reading. A zero reading means the remote
// sources could not be reached and is ignored.
func (rt *remoteTime) sync() bool {
	tm := rt.now()
	if tm.IsZero() {
		return false
	}
	ltime := time.Now()
	rt.mu.Lock()
	if !rt.remote {
		logger.Info("offset", tm.Sub(ltime), "synced with internet time")
	}
	rt.remote = true
	rt.rtime = tm
	rt.ltime = ltime
	rt.mu.Unlock()
	return true
}

func (rt *remoteTime) Now() time.Time {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if !rt.remote {
		return time.Now()
	}
	return rt.rtime.Add(time.Since(rt.ltime))
}
