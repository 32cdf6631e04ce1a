package main

import (
	"flag"

	"go.uber.org/fx"

	"github.com/msadley/Basilisk-sub000/internal/daemon"
	"github.com/msadley/Basilisk-sub000/internal/home"
)

func main() {
	dataDir := flag.String("data-dir", home.Default(), "data directory")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	app := fx.New(
		daemon.Module(daemon.Params{DataDir: *dataDir, Debug: *debug}),
	)

	app.Run()
}
