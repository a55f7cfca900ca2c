package main

import (
	"context"
	"os"

	"github.com/shashiranjanraj/patternbus/config"
	"github.com/shashiranjanraj/patternbus/pkg/bus"
	"github.com/shashiranjanraj/patternbus/pkg/logger"
	"github.com/shashiranjanraj/patternbus/pkg/mirror"
	"github.com/shashiranjanraj/patternbus/pkg/script"
)

var (
	logLevelFlag string
	closeMongo   = func() {}

	// attachMongo adds the MongoDB log sink; replaced in tests.
	attachMongo = logger.AttachMongo
)

// setupLogging rebuilds the logger from config, on stderr so stdout stays
// clean for traces, and attaches the MongoDB sink when configured.
func setupLogging() error {
	if err := config.Load(); err != nil {
		return err
	}

	level := config.LogLevel()
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logger.Setup(os.Stderr, config.AppEnv(), level)

	closer, err := attachMongo()
	if err != nil {
		logger.Warn("mongo log sink unavailable", "error", err)
		return nil
	}
	closeMongo = closer
	return nil
}

// closeLogging flushes the MongoDB sink, if any. Later calls are no-ops.
func closeLogging() {
	closer := closeMongo
	closeMongo = func() {}
	closer()
}

func newBus() *bus.Bus {
	return bus.New(
		bus.WithLogger(logger.L),
		bus.WithSource(config.BusSource()),
	)
}

// wantsMirror reports whether any binding in sc forwards to Redis.
func wantsMirror(sc *script.Scenario) bool {
	for _, b := range sc.Bindings {
		if b.Mirror {
			return true
		}
	}
	for _, st := range sc.Steps {
		if st.Bind != nil && st.Bind.Mirror {
			return true
		}
	}
	return false
}

// newMirror connects to Redis and returns the mirror plus its cleanup.
func newMirror(ctx context.Context) (*mirror.Mirror, func(), error) {
	rdb, err := mirror.Connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	m := mirror.New(rdb, config.MirrorChannel(), config.MirrorWorkers(), mirror.WithLogger(logger.L))
	return m, func() {
		m.Close()
		_ = rdb.Close()
	}, nil
}

// runnerFor builds a script runner for sc, with a Redis mirror when needed.
func runnerFor(ctx context.Context, b *bus.Bus, sc *script.Scenario) (*script.Runner, func(), error) {
	if !wantsMirror(sc) {
		return script.NewRunner(b), func() {}, nil
	}
	m, cleanup, err := newMirror(ctx)
	if err != nil {
		return nil, nil, err
	}
	return script.NewRunner(b, script.WithMirror(m)), cleanup, nil
}
