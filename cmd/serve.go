package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/liveserve/internal/config"
	devErrors "github.com/conneroisu/liveserve/internal/errors"
	"github.com/conneroisu/liveserve/internal/logging"
	"github.com/conneroisu/liveserve/internal/server"
	"github.com/conneroisu/liveserve/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the live-reload WebSocket server",
	Long: `Start the WebSocket server and watch the configured paths. Each
debounced batch of file changes runs the build command (if configured) and
broadcasts a reload on success or the build output as an error on failure.

Examples:
  liveserve serve                                # Watch . on localhost:7331
  liveserve serve --port 9000 --watch site       # Custom port and path
  liveserve serve --build "make site" --ext html,css`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 7331, "Port to listen on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().StringSliceP("watch", "w", []string{"."}, "Paths to watch recursively")
	serveCmd.Flags().StringSlice("ext", nil, "File extensions to watch (default: all)")
	serveCmd.Flags().StringP("build", "b", "", "Command to run on change before broadcasting")
	serveCmd.Flags().Bool("no-watch", false, "Serve broadcasts only, without watching files")

	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("watch.paths", serveCmd.Flags().Lookup("watch"))
	viper.BindPFlag("watch.extensions", serveCmd.Flags().Lookup("ext"))
	viper.BindPFlag("build.command", serveCmd.Flags().Lookup("build"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Server.Address(), logger)
	if err := srv.Start(ctx); err != nil {
		if devErrors.IsPortInUse(err) {
			return fmt.Errorf("%w\n\nPort %d is taken, most likely by a previous liveserve instance.\nStop it or pick another port with --port.", err, cfg.Server.Port)
		}
		return err
	}
	defer srv.Stop(context.Background())

	noWatch, _ := cmd.Flags().GetBool("no-watch")
	if !noWatch {
		w, err := watcher.New(cfg.Watch.Debounce, cfg.Watch.Extensions, logger)
		if err != nil {
			return fmt.Errorf("creating watcher: %w", err)
		}
		defer w.Close()

		for _, path := range cfg.Watch.Paths {
			if err := w.AddRecursive(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}

		w.OnChange(changeHandler(ctx, srv, cfg, logger))
		go w.Run(ctx)

		logger.Info(ctx, "watching for changes",
			"paths", strings.Join(cfg.Watch.Paths, ","),
			"debounce", cfg.Watch.Debounce.String(),
		)
	}

	fmt.Fprintf(os.Stderr, "liveserve ready on ws://%s (embed snippet: liveserve config snippet)\n", srv.Addr())

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	return nil
}

// changeHandler runs the configured build command for each change batch and
// broadcasts the outcome.
func changeHandler(ctx context.Context, srv *server.Server, cfg *config.Config, logger logging.Logger) watcher.Handler {
	return func(paths []string) {
		logger.Debug(ctx, "change detected", "files", len(paths), "first", paths[0])

		if cfg.Build.Command != "" {
			output, err := runBuild(ctx, cfg.Build.Command)
			if err != nil {
				logger.Warn(ctx, err, "build failed")
				srv.BroadcastError(ctx, buildErrorText(output, err))
				return
			}
		}

		srv.BroadcastReload(ctx)
	}
}

func runBuild(ctx context.Context, command string) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

// buildErrorText prefers the command's own output over the bare exit error,
// since that is what the developer needs to see in the browser console.
func buildErrorText(output string, err error) string {
	text := strings.TrimSpace(output)
	if text == "" {
		text = err.Error()
	}
	return text
}
