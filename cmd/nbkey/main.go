// Command nbkey is an interactive demo of non-blocking key dispatch.
//
// Keys are reported as they arrive while a status line keeps redrawing.
// Press / to search the words given as arguments, q to quit, Ctrl-C to
// interrupt or Ctrl-D to end input.
//
// Run with: go run ./cmd/nbkey alpha beta gamma
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kungfusheep/nbkey"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

const appName = "nbkey"

func main() {
	configPath := flag.StringP("config", "c", nbkey.ConfigPath(), "key binding config file")
	app := flag.String("app", appName, "config section to apply after [global]")
	interval := flag.DurationP("interval", "i", 100*time.Millisecond, "poll interval")
	debug := flag.BoolP("debug", "d", false, "log dispatch details to stderr")
	writeConfig := flag.Bool("write-config", false, "print a binding template and exit")
	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: crlfWriter{os.Stderr}, NoColor: true}).
		Level(level).With().Timestamp().Logger()

	d := newDemo(os.Stdout, flag.Args())

	if *writeConfig {
		disp := nbkey.NewDispatcher(nbkey.NewKeyQueue(1), nil)
		d.bind(disp)
		if err := disp.WriteDefaultBindings(os.Stdout, *app); err != nil {
			log.Fatal().Err(err).Msg("writing config template")
		}
		return
	}

	console, err := nbkey.NewConsole(os.Stdin)
	if err != nil {
		log.Fatal().Err(err).Msg("opening console")
	}

	session := nbkey.NewSession(console, os.Stdin).
		Logger(log).
		Notice(os.Stdout)
	d.bind(session.Dispatcher)
	if err := session.LoadBindingsFrom(*configPath, *app); err != nil {
		log.Fatal().Err(err).Msg("loading key bindings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	err = session.Run(d.keymap(), func(s *nbkey.Session) error {
		fmt.Print("Press keys (/ to search, q to quit, Ctrl-C to interrupt, Ctrl-D to end)\r\n")
		return s.Poll(ctx, *interval, d.tick)
	})
	fmt.Print("\r\n")
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("session ended")
		os.Exit(1)
	}
}
