package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pigeonchat/pigeon/internal/bus"
	"github.com/pigeonchat/pigeon/internal/client/api"
	"github.com/pigeonchat/pigeon/internal/client/cache"
	"github.com/pigeonchat/pigeon/internal/client/engine"
	"github.com/pigeonchat/pigeon/internal/client/socket"
	"github.com/pigeonchat/pigeon/internal/client/status"
	"github.com/pigeonchat/pigeon/internal/config"
	"github.com/pigeonchat/pigeon/internal/lock"
	"github.com/pigeonchat/pigeon/internal/logging"
	"github.com/pigeonchat/pigeon/internal/session"
	"github.com/pigeonchat/pigeon/internal/tui"
	"github.com/pigeonchat/pigeon/internal/tui/model"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	serverFlag := flag.String("server", "", "server URL (overrides config)")
	tokenFlag := flag.String("token", "", "bearer token (overrides config)")
	flag.Parse()

	profile := session.Resolve(*profileFlag)
	if err := session.ValidateName(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := session.EnsureDir(profile); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, _ := config.Load(session.ConfigPath())
	serverURL := cfg.Client.ServerURL
	if *serverFlag != "" {
		serverURL = *serverFlag
	}
	token := cfg.Client.Token
	if *tokenFlag != "" {
		token = *tokenFlag
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "error: no token configured")
		fmt.Fprintln(os.Stderr, "register with `pigeonctl register <username>` and put the token in ~/.pigeon/config.toml")
		os.Exit(1)
	}

	// One client per profile: concurrent cache writers would corrupt the
	// reconciliation state.
	lk, err := lock.Acquire(session.CacheDir(profile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lk.Release() }()

	logger, err := logging.NewFileOnly(session.ClientLogPath(profile), "pigeontui")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	apiClient := api.New(serverURL, token)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	self, err := apiClient.Me(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	b := bus.New()
	eng := engine.New(self.ID, cache.New(session.CacheDir(profile)), apiClient, logger)
	vm := model.NewViewModel(self.ID, apiClient, eng, logger)

	events, unsub := b.Subscribe("", 256)
	defer unsub()
	go vm.Consume(ctx, events)

	wsURL, err := socket.DialURL(serverURL, token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	machine := status.NewMachine(b)
	sock := socket.New(wsURL, self.ID, b, machine, logger,
		time.Duration(cfg.Client.ReconnectWaitMs)*time.Millisecond)
	go sock.Run(ctx)
	defer sock.Close()

	emitter := model.NewTypingEmitter(sock,
		time.Duration(cfg.Client.TypingWindowMs)*time.Millisecond)

	app := tui.NewApp(profile, vm, emitter)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
