package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"capserve/internal/commands"
	"capserve/internal/config"
	"capserve/internal/picker"
	"capserve/internal/server"
	"capserve/internal/state"
	"capserve/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the asset server and advertise it in connection.json",
	RunE:  runServe,
}

var (
	serveListen string
	servePick   bool
	serveWatch  bool
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "loopback host:port to listen on (default 127.0.0.1:0)")
	serveCmd.Flags().BoolVar(&servePick, "pick", false, "choose the folder interactively before serving")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "report file changes (always on with --json)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(func(c *config.Config) {
		if serveListen != "" {
			c.Server.Listen = serveListen
		}
	})
	if err != nil {
		return err
	}

	var fp commands.FolderPicker
	if servePick {
		fp = picker.Auto(os.Stdin, os.Stderr)
	}
	rt, err := newRuntime(cmd, cfg, fp)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if servePick {
		if _, err := rt.service.ChooseRoot(ctx); err != nil {
			return err
		}
	}

	srv := server.New(rt.state, server.Options{
		Addr:              cfg.Server.Listen,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout(),
		Logger:            &rt.log,
	})
	listener, err := srv.Listen("")
	if err != nil {
		return withExit(ExitBindFailure, err)
	}
	info, err := rt.service.RootAndPort()
	if err != nil {
		_ = listener.Close()
		return err
	}

	pid := os.Getpid()
	started := time.Now().UTC()
	advertise := func(root string) {
		conn := state.Connection{Root: root, Port: info.Port, URL: info.URL, PID: pid, StartedAt: started}
		if err := state.WriteConnection(cfg.StateDir, conn); err != nil {
			rt.log.Warn().Err(err).Str("state_dir", cfg.StateDir).Msg("could not write connection.json")
		}
	}
	advertise(info.Root)
	defer func() {
		if err := state.RemoveConnection(cfg.StateDir, pid); err != nil {
			rt.log.Warn().Err(err).Msg("could not remove connection.json")
		}
	}()

	out := cmd.OutOrStdout()
	events := newEmitter(out)
	if globalFlags.JSON {
		events.emit("server_started", map[string]interface{}{
			"root":            info.Root,
			"port":            info.Port,
			"url":             info.URL,
			"connection_file": state.ConnectionPath(cfg.StateDir),
		})
	} else if !globalFlags.Quiet {
		st := newStyles(out, false)
		fmt.Fprintln(out, st.banner(), st.dim(version))
		fmt.Fprintln(out)
		fmt.Fprintln(out, st.kv("Root", info.Root))
		fmt.Fprintln(out, st.kv("URL", st.URL.Render(info.URL)))
		fmt.Fprintln(out, st.kv("Health", info.URL+"/checkAlive"))
		fmt.Fprintln(out, st.kv("Connection", state.ConnectionPath(cfg.StateDir)))
		fmt.Fprintln(out)
		fmt.Fprintln(out, st.dim("Press Ctrl+C to stop."))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, listener)
	})
	g.Go(func() error {
		changes, cancel := rt.state.Subscribe()
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case root := <-changes:
				advertise(root)
				if globalFlags.JSON {
					events.emit("root_changed", map[string]interface{}{"root": root})
				}
			}
		}
	})
	if globalFlags.JSON || serveWatch {
		g.Go(func() error {
			err := rt.service.Watch(gctx, func(ev watch.Event) {
				reportWatchEvent(cmd, events, ev)
			})
			if err != nil {
				// The server keeps running without change reports.
				rt.log.Warn().Err(err).Msg("file watcher stopped")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	stats := rt.state.Snapshot().Stats
	if globalFlags.JSON {
		events.emit("server_stopped", map[string]interface{}{"url": info.URL, "stats": stats})
	} else if !globalFlags.Quiet {
		st := newStyles(out, false)
		fmt.Fprintln(out, st.dim("stopped:"),
			st.stat("served", int(stats.Served)),
			st.stat("bytes", int(stats.BytesOut)),
			st.stat("not found", int(stats.NotFound)),
			st.stat("rejected", int(stats.Rejected)),
			st.stat("written", int(stats.Written)))
	}
	return nil
}

func reportWatchEvent(cmd *cobra.Command, events *emitter, ev watch.Event) {
	if globalFlags.JSON {
		data := map[string]interface{}{"root": ev.Root}
		if len(ev.Paths) > 0 {
			data["paths"] = ev.Paths
		}
		events.emit(ev.Type, data)
		return
	}
	if ev.Type == watch.EventFilesChanged && !globalFlags.Quiet {
		st := newStyles(cmd.OutOrStdout(), false)
		fmt.Fprintln(cmd.OutOrStdout(), st.dim(fmt.Sprintf("changed: %d path(s)", len(ev.Paths))))
	}
}
