package main

import (
	"github.com/moontrade/squirrel/app"
	"github.com/moontrade/squirrel/logger"
)

// Set with -ldflags "-X main.version=... -X main.gitsha=..."
var (
	version = "0.1.0"
	gitsha  = ""
)

func main() {
	logger.Fatal(app.Main(app.Config{
		Name:    "squirreld",
		Version: version,
		GitSHA:  gitsha,
	}))
}
