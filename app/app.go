package app

// Main runs a squirreld node. It is meant to be the last call in main() and
// returns only when the shared socket fails.
func Main(conf Config) error {
	confInit(&conf)
	hclogger := logInit(conf)

	// replicated state, possibly seeded from a --restore snapshot
	dir, restore := dataDirInit(conf)
	m := machineInit(conf, dir, restore)
	clock := remoteTimeInit(conf)

	// networking: the raft route has to be registered before RESP
	tlscfg := tlsInit(conf)
	mx, addr := listenInit(conf, tlscfg)
	trans := transportInit(conf, tlscfg, mx, hclogger)

	logs, stable := storeInit(conf, dir)
	snaps := snapshotInit(conf, dir, m, hclogger)
	ra := raftInit(conf, hclogger, m, logs, stable, snaps, trans)
	joinClusterIfNeeded(conf, ra, addr, tlscfg)
	respInit(conf, mx, m, ra)

	for _, run := range []func(){
		func() { runWriteApplier(conf, m, ra) },
		func() { runTicker(conf, clock, m, ra) },
		func() { runLogLoadedPoller(conf, m, ra, tlscfg) },
		func() { runMaintainServers(ra) },
	} {
		go run()
	}
	return mx.serve()
}
