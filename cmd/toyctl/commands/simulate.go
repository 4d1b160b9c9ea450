package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snugbit/toygateway/pkg/cli"
	"github.com/snugbit/toygateway/pkg/device"
	"github.com/snugbit/toygateway/pkg/led"
	"github.com/snugbit/toygateway/pkg/logging"
)

// simulateFrameRate is how often the status frame is redrawn. No bubbletea
// dependency here: a plain ticker plus cli.Frame covers a single scrolling
// status panel without needing a full TUI event loop.
const simulateFrameRate = 500 * time.Millisecond

func newSimulateCmd() *cobra.Command {
	var (
		gatewayURL, deviceID, toyID, authToken string
		inputPath, outputPath                  string
		width, height                          int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a simulated device against a gateway",
		Long: "Connects to a gateway as a device and streams audio from a file in\n" +
			"place of a microphone, writing any response audio to another file in\n" +
			"place of a speaker (AUDIO_INPUT_DEVICE/AUDIO_OUTPUT_DEVICE substitution).",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctxCfg, err := resolveContext(gatewayURL, deviceID, toyID, authToken)
			if err != nil {
				return err
			}

			cfg := device.LoadConfig()
			cfg.GatewayURL = ctxCfg.GatewayURL
			cfg.DeviceID = ctxCfg.DeviceID
			cfg.ToyID = ctxCfg.ToyID
			cfg.AuthToken = ctxCfg.AuthToken
			if inputPath != "" {
				cfg.AudioInputDevice = inputPath
			}
			if outputPath != "" {
				cfg.AudioOutputDevice = outputPath
			}

			return runSimulate(cfg, width, height)
		},
	}

	cmd.Flags().StringVar(&gatewayURL, "gateway-url", "", "override the context's gateway URL")
	cmd.Flags().StringVar(&deviceID, "device-id", "", "override the context's device id")
	cmd.Flags().StringVar(&toyID, "toy-id", "", "override the context's toy id")
	cmd.Flags().StringVar(&authToken, "auth-token", "", "override the context's auth token")
	cmd.Flags().StringVar(&inputPath, "input", "", "raw PCM16 file substituting the microphone")
	cmd.Flags().StringVar(&outputPath, "output", "", "raw PCM16 file substituting the speaker")
	cmd.Flags().IntVar(&width, "width", 100, "status panel width")
	cmd.Flags().IntVar(&height, "height", 24, "status panel height")
	return cmd
}

// resolveContext merges the current context's stored profile with any
// flag overrides, flag values taking precedence.
func resolveContext(gatewayURL, deviceID, toyID, authToken string) (cli.Context, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cli.Context{}, err
	}
	ctx, err := cfg.GetCurrentContext()
	if err != nil {
		ctx = &cli.Context{}
	}
	out := *ctx
	if gatewayURL != "" {
		out.GatewayURL = gatewayURL
	}
	if deviceID != "" {
		out.DeviceID = deviceID
	}
	if toyID != "" {
		out.ToyID = toyID
	}
	if authToken != "" {
		out.AuthToken = authToken
	}
	if out.GatewayURL == "" {
		return cli.Context{}, fmt.Errorf("no gateway URL: pass --gateway-url or run 'toyctl context add'")
	}
	return out, nil
}

func runSimulate(cfg device.Config, width, height int) error {
	logWriter := cli.NewLogWriter(200)
	logger := logging.Slog(slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelDebug})), "device: ")

	var sink io.Writer = io.Discard
	if cfg.AudioOutputDevice != "" {
		f, err := os.Create(cfg.AudioOutputDevice)
		if err != nil {
			return fmt.Errorf("open output file: %w", err)
		}
		defer f.Close()
		sink = f
	}

	terminal := led.NewTerminal()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dev := device.New(ctx, cfg, sink, terminal, logger)
	defer dev.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- dev.Run() }()

	if cfg.AudioInputDevice != "" {
		go func() {
			f, err := os.Open(cfg.AudioInputDevice)
			if err != nil {
				logger.ErrorPrintf("open input file: %v", err)
				return
			}
			defer f.Close()
			if err := dev.StartListening(ctx, f); err != nil {
				logger.ErrorPrintf("capture: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	styles := cli.NewStyles(cli.DefaultTheme)
	ticker := time.NewTicker(simulateFrameRate)
	defer ticker.Stop()

	for {
		select {
		case err := <-runErr:
			return err
		case <-sigCh:
			return nil
		case <-ticker.C:
			fmt.Print("\033[H\033[2J")
			frame := cli.Frame{
				Styles: styles,
				Title:  "TOYCTL // SIMULATE " + cfg.DeviceID,
				Status: dev.State().String() + " " + terminal.Current(),
				Sections: []cli.Section{
					{Label: "System Log", Content: logWriter.Lines},
				},
				Help: "Ctrl+C to quit",
			}
			fmt.Print(frame.Render(width, height))
		}
	}
}
