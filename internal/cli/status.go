package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"capserve/internal/model"
	"capserve/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running server from connection.json and probe it",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	conn, err := state.ReadConnection(cfg.StateDir)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			if globalFlags.JSON {
				newEmitter(out).emit("status", map[string]interface{}{"running": false, "state_dir": cfg.StateDir})
				return nil
			}
			fmt.Fprintln(out, "No running server found in", cfg.StateDir, "- run 'capserve serve' first.")
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
	defer cancel()
	alive := probeAlive(ctx, conn.URL)

	if globalFlags.JSON {
		newEmitter(out).emit("status", map[string]interface{}{
			"running":    alive,
			"root":       conn.Root,
			"port":       conn.Port,
			"url":        conn.URL,
			"pid":        conn.PID,
			"started_at": conn.StartedAt,
			"state_dir":  cfg.StateDir,
		})
		return nil
	}

	st := newStyles(out, false)
	health := st.Green.Render("alive")
	if !alive {
		health = st.Red.Render("not responding")
	}
	fmt.Fprintln(out, st.sectionHeader("capserve"))
	fmt.Fprintln(out, st.kv("Root", conn.Root))
	fmt.Fprintln(out, st.kv("URL", conn.URL))
	fmt.Fprintln(out, st.kv("PID", strconv.Itoa(conn.PID)))
	fmt.Fprintln(out, st.kv("Started", conn.StartedAt.Local().Format(time.RFC3339)))
	fmt.Fprintln(out, st.kv("Health", health))
	return nil
}

// probeAlive reports whether GET <url>/checkAlive answers 200 OK.
func probeAlive(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/checkAlive", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
	return resp.StatusCode == http.StatusOK && string(body) == "OK"
}
