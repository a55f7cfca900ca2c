package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/patternbus/config"
	"github.com/shashiranjanraj/patternbus/pkg/logger"
	"github.com/shashiranjanraj/patternbus/pkg/script"
)

var (
	serveAddrFlag   string
	serveScriptFlag string
)

// busctl serve
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Read fire/flush/bind/unbind commands from stdin and serve metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sc := &script.Scenario{}
		if serveScriptFlag != "" {
			loaded, err := script.Load(serveScriptFlag)
			if err != nil {
				return err
			}
			sc = loaded
		}

		b := newBus()
		runner, cleanup, err := runnerFor(ctx, b, sc)
		if err != nil {
			return err
		}
		defer cleanup()

		// Bindings only; steps are fed one line at a time below.
		if _, err := runner.Run(&script.Scenario{Source: sc.Source, Bindings: sc.Bindings}); err != nil {
			return err
		}

		addr := serveAddrFlag
		if addr == "" {
			addr = config.MetricsAddr()
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           newAdminRouter(b),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server stopped", "error", err)
				stop()
			}
		}()
		logger.Info("busctl serving", "addr", addr, "bindings", len(sc.Bindings))

		// Keep serving after stdin closes; only a signal ends the command.
		go readCommands(cmd.InOrStdin(), cmd.OutOrStdout(), runner)
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddrFlag, "addr", "a", "", "Admin listen address (default METRICS_ADDR)")
	serveCmd.Flags().StringVarP(&serveScriptFlag, "script", "s", "", "Scenario whose bindings are loaded at start")
}

// readCommands applies one step per input line until EOF. Blank lines and
// lines starting with # are skipped.
func readCommands(in io.Reader, out io.Writer, runner *script.Runner) {
	scanner := bufio.NewScanner(in)
	i := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		st, err := script.ParseLine(line)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}

		res := runner.Apply(i, st)
		i++
		for _, c := range res.Calls {
			fmt.Fprintf(out, "%s %s -> %s %s\n", res.Action, res.Target, c.Binding, c.Result)
		}
		if res.Err != nil {
			fmt.Fprintln(out, "error:", res.Err)
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("stdin read failed", "error", err)
	}
}
