package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func versline(conf Config) string {
	sha := ""
	if conf.GitSHA != "" {
		sha = " (" + conf.GitSHA + ")"
	}
	return fmt.Sprintf("%s version %s%s", conf.Name, conf.Version, sha)
}

const usage = `{{NAME}} version: {{VERSION}} ({{GITSHA}})

Usage: {{NAME}} [-n id] [-a addr] [options]

Basic options:
  -v               : display version
  -h               : display help, this screen
  -a addr          : bind to address  (default: 127.0.0.1:11001)
  -n id            : node ID  (default: 1)
  -d dir           : data directory  (default: data)
  -j addr          : leader address of a cluster to join
  -l level         : log level  (default: info) [debug,verb,info,warn,silent]

Security options:
  --tls-cert path  : path to TLS certificate
  --tls-key path   : path to TLS private key
  --auth auth      : cluster authorization, shared by all servers and clients

Networking options:
  --advertise addr : advertise address  (default: network bound address)

Stream options:
  --default-width n     : width of streams created without BITS  (default: 64)
  --max-draws n         : most values returned by a single command
                          (default: 65536)
  --snapshot-codec name : snapshot compression  (default: gzip)
                          [gzip,snappy,lz4,zstd]

Advanced options:
  --nosync         : turn off syncing data to disk after every write. This leads
                     to faster write operations but opens up the chance for data
                     loss due to catastrophic events such as power failure.
  --openreads      : allow followers to process read commands, but with the
                     possibility of returning stale data.
  --localtime      : have the raft machine time synchronized with the local
                     server rather than the public internet. This will run the
                     risk of time shifts when the local server time is
                     drastically changed during live operation.
  --restore path   : restore a raft machine from a snapshot file. This will
                     start a brand new single-node cluster using the snapshot as
                     initial data. The other nodes must be re-joined. This
                     operation is ignored when a data directory already exists.
                     Cannot be used with -j flag.
  --init-run-quit  : initialize a bootstrap operation and then quit.
`

// Config is the configuration for managing the behavior of the application.
// This must be fill out prior and then passed to the Main() function.
type Config struct {
	// Name gives the server application a name. Default "squirreld"
	Name string

	// Version of the application. Default "0.0.0"
	Version string

	// GitSHA of the application.
	GitSHA string

	LocalTime     bool          // default false
	TickDelay     time.Duration // default 500ms
	BackupPath    string        // default ""
	NodeID        string        // default "1"
	Addr          string        // default "127.0.0.1:11001"
	DataDir       string        // default "data"
	LogLevel      string        // default "info"
	LogJSON       bool          // default false
	JoinAddr      string        // default ""
	NoSync        bool          // default false
	OpenReads     bool          // default false
	MaxPool       int           // default 8
	TLSCertPath   string        // default ""
	TLSKeyPath    string        // default ""
	Auth          string        // default ""
	Advertise     string        // default ""
	TryErrors     bool          // default false (return TRY instead of MOVED)
	InitRunQuit   bool          // default false
	SnapshotCodec string        // default "gzip"
	DefaultWidth  int           // default 64
	MaxDraws      int           // default 65536
}

func (conf *Config) def() {
	if conf.Addr == "" {
		conf.Addr = "127.0.0.1:11001"
	}
	if conf.Version == "" {
		conf.Version = "0.0.0"
	}
	if conf.Name == "" {
		conf.Name = "squirreld"
	}
	if conf.NodeID == "" {
		conf.NodeID = "1"
	}
	if conf.DataDir == "" {
		conf.DataDir = "data"
	}
	if conf.LogLevel == "" {
		conf.LogLevel = "info"
	}
	if conf.TickDelay == 0 {
		conf.TickDelay = time.Millisecond * 500
	}
	if conf.MaxPool == 0 {
		conf.MaxPool = 8
	}
	if conf.SnapshotCodec == "" {
		conf.SnapshotCodec = "gzip"
	}
	if conf.DefaultWidth == 0 {
		conf.DefaultWidth = 64
	}
	if conf.MaxDraws == 0 {
		conf.MaxDraws = 1 << 16
	}
}

func confInit(conf *Config) {
	conf.def()
	flag.Usage = func() {
		w := os.Stderr
		for _, arg := range os.Args {
			if arg == "-h" || arg == "--help" {
				w = os.Stdout
				break
			}
		}
		s := usage
		s = strings.Replace(s, "{{VERSION}}", conf.Version, -1)
		if conf.GitSHA == "" {
			s = strings.Replace(s, " ({{GITSHA}})", "", -1)
			s = strings.Replace(s, "{{GITSHA}}", "", -1)
		} else {
			s = strings.Replace(s, "{{GITSHA}}", conf.GitSHA, -1)
		}
		s = strings.Replace(s, "{{NAME}}", conf.Name, -1)
		w.Write([]byte(s))
		if w == os.Stdout {
			os.Exit(0)
		}
	}
	var testNode string
	var vers bool
	flag.BoolVar(&vers, "v", false, "")
	flag.StringVar(&conf.Addr, "a", conf.Addr, "")
	flag.StringVar(&conf.NodeID, "n", conf.NodeID, "")
	flag.StringVar(&conf.DataDir, "d", conf.DataDir, "")
	flag.StringVar(&conf.JoinAddr, "j", conf.JoinAddr, "")
	flag.StringVar(&conf.LogLevel, "l", conf.LogLevel, "")
	flag.BoolVar(&conf.LogJSON, "log-json", conf.LogJSON, "")
	flag.StringVar(&conf.TLSCertPath, "tls-cert", conf.TLSCertPath, "")
	flag.StringVar(&conf.TLSKeyPath, "tls-key", conf.TLSKeyPath, "")
	flag.BoolVar(&conf.NoSync, "nosync", conf.NoSync, "")
	flag.BoolVar(&conf.OpenReads, "openreads", conf.OpenReads, "")
	flag.StringVar(&conf.BackupPath, "restore", conf.BackupPath, "")
	flag.BoolVar(&conf.LocalTime, "localtime", conf.LocalTime, "")
	flag.StringVar(&conf.Auth, "auth", conf.Auth, "")
	flag.StringVar(&conf.Advertise, "advertise", conf.Advertise, "")
	flag.StringVar(&testNode, "t", "", "")
	flag.BoolVar(&conf.TryErrors, "try-errors", conf.TryErrors, "")
	flag.BoolVar(&conf.InitRunQuit, "init-run-quit", conf.InitRunQuit, "")
	flag.StringVar(&conf.SnapshotCodec, "snapshot-codec", conf.SnapshotCodec, "")
	flag.IntVar(&conf.DefaultWidth, "default-width", conf.DefaultWidth, "")
	flag.IntVar(&conf.MaxDraws, "max-draws", conf.MaxDraws, "")
	flag.Parse()
	if vers {
		fmt.Printf("%s\n", versline(*conf))
		os.Exit(0)
	}
	if err := conf.apply(testNode); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// apply expands the -t test node shorthand and validates the options.
func (conf *Config) apply(testNode string) error {
	switch testNode {
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if conf.Addr == "" {
			conf.Addr = ":1100" + testNode
		} else {
			conf.Addr = conf.Addr[:len(conf.Addr)-1] + testNode
		}
		conf.NodeID = testNode
		if testNode != "1" {
			conf.JoinAddr = conf.Addr[:len(conf.Addr)-1] + "1"
		}
	case "":
	default:
		return errors.New("invalid usage of test flag -t")
	}
	if conf.TLSCertPath != "" && conf.TLSKeyPath == "" {
		return errors.New("flag --tls-key cannot be empty when --tls-cert is provided")
	} else if conf.TLSCertPath == "" && conf.TLSKeyPath != "" {
		return errors.New("flag --tls-cert cannot be empty when --tls-key is provided")
	}
	if conf.Advertise != "" {
		colon := strings.IndexByte(conf.Advertise, ':')
		if colon == -1 {
			return errors.New("flag --advertise is missing port number")
		}
		_, err := strconv.ParseUint(conf.Advertise[colon+1:], 10, 16)
		if err != nil {
			return errors.New("flag --advertise port number invalid")
		}
	}
	if conf.BackupPath != "" && conf.JoinAddr != "" {
		return errors.New("flag --restore cannot be used with -j")
	}
	if _, err := parseCodec(conf.SnapshotCodec); err != nil {
		return fmt.Errorf("flag --snapshot-codec: %w", err)
	}
	if err := checkWidth(conf.DefaultWidth); err != nil {
		return fmt.Errorf("flag --default-width: %w", err)
	}
	if conf.MaxDraws < 1 {
		return errors.New("flag --max-draws must be positive")
	}
	return nil
}
