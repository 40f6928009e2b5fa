package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/pigeonchat/pigeon/internal/config"
	"github.com/pigeonchat/pigeon/internal/daemon"
	"github.com/pigeonchat/pigeon/internal/session"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	listenFlag := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, _ := config.Load(session.ConfigPath())
	listen := cfg.Server.ListenAddr
	if *listenFlag != "" {
		listen = *listenFlag
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			Profile:    profile,
			ListenAddr: listen,
			AckTimeout: time.Duration(cfg.Server.AckTimeoutMs) * time.Millisecond,
		}),
	)

	app.Run()
}
