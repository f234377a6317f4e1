package app

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/moontrade/squirrel/logger"
	"github.com/rs/zerolog"
)

func logInit(conf Config) hclog.Logger {
	zlevel, level, err := logger.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -l: %s\n", conf.LogLevel)
		os.Exit(1)
	}
	if conf.LogJSON {
		logger.SetJsonWriter()
	} else {
		logger.SetConsoleWriter()
	}
	zerolog.SetGlobalLevel(zlevel)
	hclopts := *hclog.DefaultOptions
	hclopts.Level = level
	hclopts.Output = logger.RaftWriter
	logger.Notice("starting %s", versline(conf))
	return hclog.New(&hclopts)
}
