package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arzzra/sofsip/pkg/config"
	"github.com/arzzra/sofsip/pkg/console"
	"github.com/arzzra/sofsip/pkg/engine/sipua"
	"github.com/arzzra/sofsip/pkg/logging"
	"github.com/arzzra/sofsip/pkg/metrics"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	code := 0
	root := newRootCmd(&code)
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "sofsip: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

type rootFlags struct {
	configFile  string
	envFile     string
	debug       bool
	listen      string
	transport   string
	metricsAddr string
	externalSDP bool
	logLevel    string
	logFormat   string
}

func newRootCmd(code *int) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:           "sofsip [address-of-record]",
		Short:         "Interactive SIP user agent console",
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]interface{}{}
			flags := cmd.Flags()
			if flags.Changed("debug") {
				overrides["debug"] = f.debug
			}
			if flags.Changed("listen") {
				overrides["listen"] = f.listen
			}
			if flags.Changed("transport") {
				overrides["transport"] = f.transport
			}
			if flags.Changed("metrics-addr") {
				overrides["metrics_addr"] = f.metricsAddr
			}
			if flags.Changed("external-sdp") {
				overrides["external_sdp"] = f.externalSDP
			}

			logger := newLogger(f)
			logging.SetDefault(logger)

			exit, err := console.Loop(cmd.Context(), console.Options{
				Input:  os.Stdin,
				Output: os.Stdout,
				Stderr: os.Stderr,
				Args:   args,
				Config: config.Sources{
					EnvFile:    f.envFile,
					ConfigFile: f.configFile,
					Overrides:  overrides,
				},
				EngineFactory: sipua.New,
				Logger:        logger,
				Metrics:       metrics.NewCollector(),
			})
			*code = exit
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configFile, "config", "c", "", "YAML config file (default $SOFSIP_CONFIG)")
	flags.StringVar(&f.envFile, "env-file", ".env", "dotenv file with SOFSIP_* variables")
	flags.BoolVarP(&f.debug, "debug", "d", false, "enable SIP and debug logging")
	flags.StringVarP(&f.listen, "listen", "l", config.DefaultListen, "SIP listen address host:port")
	flags.StringVarP(&f.transport, "transport", "t", config.DefaultTransport, "SIP transport: udp, tcp, tls, ws, wss")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address")
	flags.BoolVar(&f.externalSDP, "external-sdp", false, "take SDP for calls from the console")
	flags.StringVar(&f.logLevel, "log-level", envOr("SOFSIP_LOG_LEVEL", "warn"), "log level: trace, debug, info, warn, error")
	flags.StringVar(&f.logFormat, "log-format", envOr("SOFSIP_LOG_FORMAT", "text"), "log format: text or json")
	return cmd
}

// newLogger пишет в stderr, --debug поднимает уровень до debug
func newLogger(f rootFlags) *logging.ZeroLogger {
	level := logging.ParseLevel(f.logLevel)
	if f.debug && level > logging.LevelDebug {
		level = logging.LevelDebug
	}
	if strings.EqualFold(f.logFormat, "json") {
		return logging.NewJSON(os.Stderr, level)
	}
	return logging.New(os.Stderr, level)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
