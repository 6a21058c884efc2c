package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/blockcast/internal/api"
	"github.com/bryanchriswhite/blockcast/internal/capture"
	"github.com/bryanchriswhite/blockcast/internal/config"
	"github.com/bryanchriswhite/blockcast/internal/logger"
	"github.com/bryanchriswhite/blockcast/internal/output"
	"github.com/bryanchriswhite/blockcast/internal/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Capture the screen and serve the block preview",
	Long: `Start capturing the configured screen region, track changed blocks and
serve the preview, the REST API and the frame event websocket.`,
	Example: `  # Capture the whole screen with default settings
  blockcast serve

  # Capture a 640x480 region 100 pixels from the top left corner
  blockcast serve --clip 640x480+100+100

  # Follow changes with a 320x240 window, key frame every 60 frames
  blockcast serve --pan-window 320x240 --keyframe 60

  # Replay image files instead of capturing the screen
  blockcast serve --backend file --files a.png --files b.png`,
	RunE: runServe,
}

// serveOverrides maps serve flags to the config keys they override
var serveOverrides = map[string]string{
	"backend":    "capture.backend",
	"display":    "capture.display",
	"clip":       "capture.clip",
	"files":      "capture.files",
	"block-size": "encoder.block_size",
	"frame-rate": "encoder.frame_rate",
	"keyframe":   "encoder.keyframe_interval",
	"pan-window": "encoder.pan_window",
	"pan-speed":  "encoder.pan_speed",
	"preview":    "preview.enabled",
	"quality":    "preview.quality",
	"scale":      "preview.scale",
	"grid":       "preview.grid",
}

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.String("backend", "", "capture backend (auto, x11, screenshot, file)")
	f.Int("display", 0, "monitor index for the screenshot backend")
	f.String("clip", "", "capture region as WxH+X+Y, '-' measures from the right or bottom")
	f.StringSlice("files", nil, "images replayed by the file backend")
	f.Int("block-size", 0, "block edge in pixels, a multiple of 16")
	f.Int("frame-rate", 0, "frames per second")
	f.Int("keyframe", 0, "key frame interval in frames, 0 disables")
	f.String("pan-window", "", "autopan window as WxH, empty disables")
	f.Int("pan-speed", 0, "number of recent changes averaged by autopan")
	f.Bool("preview", true, "serve the MJPEG preview")
	f.Int("quality", 0, "preview JPEG quality")
	f.Float64("scale", 0, "preview scale factor")
	f.Bool("grid", false, "outline the blocks of each frame in the preview")

	for flag, key := range serveOverrides {
		viper.BindPFlag(key, f.Lookup(flag))
	}
}

// loadConfig loads the config file and applies command line overrides
func loadConfig(keys ...string) (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize config manager: %w", err)
	}

	for _, key := range append([]string{"server_port", "log_level"}, keys...) {
		if !viper.IsSet(key) {
			continue
		}
		if err := configMgr.Override(key, viper.Get(key)); err != nil {
			return nil, err
		}
	}
	return configMgr, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	keys := make([]string, 0, len(serveOverrides))
	for _, key := range serveOverrides {
		keys = append(keys, key)
	}
	configMgr, err := loadConfig(keys...)
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, prettyLog)
	log := logger.WithComponent("serve")
	log.Info().Str("path", configMgr.GetConfigPath()).Str("log_level", cfg.LogLevel).Msg("Configuration loaded")

	router := capture.NewRouter(cfg.Capture)
	if err := router.Start(); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	defer router.Stop()

	sess, err := session.New(router, session.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	var (
		stream  *output.MJPEGStream
		preview *output.PreviewOutput
	)
	if cfg.Preview.Enabled {
		stream = output.NewMJPEGStream()
		preview, err = output.NewPreviewOutput(output.ConfigFromPreview(cfg.Preview), stream)
		if err != nil {
			return fmt.Errorf("failed to create preview: %w", err)
		}
		if err := preview.Start(); err != nil {
			return err
		}
		defer preview.Stop()
		sess.AddWriter(preview)
	}

	server := api.NewServer(configMgr, sess, preview, stream)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(cfg.ServerPort)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- sess.Run(ctx)
	}()

	log.Info().
		Str("web_ui", fmt.Sprintf("http://localhost:%d", cfg.ServerPort)).
		Str("capture", router.Name()).
		Str("session_id", sess.ID()).
		Msg("blockcast is running, press Ctrl+C to stop")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	case err := <-serverErr:
		stop()
		<-sessionDone
		return fmt.Errorf("server error: %w", err)
	}

	<-sessionDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
