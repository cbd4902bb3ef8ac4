package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/guseggert/httpexec/bridge"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	app := &cli.App{
		Name:  "httpexec",
		Usage: "serve a command over HTTP, one process per request",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Minimum log level. One of [debug,info,warn,error].",
				Value:   "info",
				EnvVars: []string{"HTTPEXEC_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			invokeCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var serveCommand = &cli.Command{
	Name:      "serve",
	Usage:     "Run the HTTP server until interrupted.",
	ArgsUsage: "[app command]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Path to a YAML config file. Flags override values from the file.",
			EnvVars: []string{"HTTPEXEC_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "app-command",
			Usage:   "The command line to run for each request. May also be given as the positional argument.",
			EnvVars: []string{"HTTPEXEC_APP_COMMAND"},
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "The interface to listen on. Empty means all interfaces.",
			EnvVars: []string{"HTTPEXEC_HOST"},
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "The port to listen on. 0 picks an ephemeral port.",
			EnvVars: []string{"HTTPEXEC_PORT"},
		},
		&cli.StringFlag{
			Name:    "shell",
			Usage:   "The shell used to interpret the app command.",
			EnvVars: []string{"HTTPEXEC_SHELL"},
		},
		&cli.StringFlag{
			Name:    "dir",
			Usage:   "Working directory of the app command.",
			EnvVars: []string{"HTTPEXEC_DIR"},
		},
		&cli.StringSliceFlag{
			Name:  "env",
			Usage: "Extra KEY=VALUE environment entries for the app command. May be repeated.",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Usage:   "Kill the app command if it runs longer than this. Negative disables the timeout.",
			EnvVars: []string{"HTTPEXEC_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:    "wait-delay",
			Usage:   "How long to wait for background jobs of the app command to release its output after it exits.",
			EnvVars: []string{"HTTPEXEC_WAIT_DELAY"},
		},
		&cli.Int64Flag{
			Name:    "max-request-bytes",
			Usage:   "Reject request bodies larger than this. Negative disables the limit.",
			EnvVars: []string{"HTTPEXEC_MAX_REQUEST_BYTES"},
		},
		&cli.StringFlag{
			Name:    "response-content-type",
			Usage:   "Content-Type of successful responses.",
			EnvVars: []string{"HTTPEXEC_RESPONSE_CONTENT_TYPE"},
		},
	},
	Action: func(ctx *cli.Context) error {
		cfg, err := configFromContext(ctx)
		if err != nil {
			return err
		}
		level, err := zapcore.ParseLevel(ctx.String("log-level"))
		if err != nil {
			return fmt.Errorf("parsing log level: %w", err)
		}

		server, err := bridge.NewServer(cfg, bridge.WithLogLevel(level))
		if err != nil {
			return fmt.Errorf("building server: %w", err)
		}

		sigCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		port, err := server.Listen()
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.ErrWriter, "listening on port %d\n", port)

		<-sigCtx.Done()
		return server.Close()
	},
}

func configFromContext(ctx *cli.Context) (bridge.Config, error) {
	var cfg bridge.Config
	if path := ctx.String("config"); path != "" {
		var err error
		cfg, err = bridge.LoadConfig(path)
		if err != nil {
			return cfg, err
		}
	}

	if ctx.NArg() > 1 {
		return cfg, fmt.Errorf("expected at most one positional argument, got %d; quote the app command", ctx.NArg())
	}
	if ctx.NArg() == 1 {
		cfg.AppCommand = ctx.Args().First()
	}
	if ctx.IsSet("app-command") {
		cfg.AppCommand = ctx.String("app-command")
	}
	if ctx.IsSet("host") {
		cfg.Host = ctx.String("host")
	}
	if ctx.IsSet("port") {
		cfg.Port = ctx.Int("port")
	}
	if ctx.IsSet("shell") {
		cfg.Shell = ctx.String("shell")
	}
	if ctx.IsSet("dir") {
		cfg.Dir = ctx.String("dir")
	}
	if ctx.IsSet("env") {
		cfg.Env = append(cfg.Env, ctx.StringSlice("env")...)
	}
	if ctx.IsSet("timeout") {
		cfg.Timeout = ctx.Duration("timeout")
	}
	if ctx.IsSet("wait-delay") {
		cfg.WaitDelay = ctx.Duration("wait-delay")
	}
	if ctx.IsSet("max-request-bytes") {
		cfg.MaxRequestBytes = ctx.Int64("max-request-bytes")
	}
	if ctx.IsSet("response-content-type") {
		cfg.ResponseContentType = ctx.String("response-content-type")
	}
	return cfg, cfg.Validate()
}

var invokeCommand = &cli.Command{
	Name:  "invoke",
	Usage: "POST a JSON body to a running server and print the response.",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "url",
			Usage:    "The server URL.",
			Required: true,
			EnvVars:  []string{"HTTPEXEC_URL"},
		},
		&cli.StringFlag{
			Name:  "data",
			Usage: "The request body. Read from stdin if not set.",
		},
		&cli.IntFlag{
			Name:  "retries",
			Usage: "How many times to retry connection errors.",
			Value: 10,
		},
	},
	Action: func(ctx *cli.Context) error {
		level, err := zapcore.ParseLevel(ctx.String("log-level"))
		if err != nil {
			return fmt.Errorf("parsing log level: %w", err)
		}
		logger, err := zap.NewDevelopment(zap.IncreaseLevel(level))
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}

		var body []byte
		if ctx.IsSet("data") {
			body = []byte(ctx.String("data"))
		} else {
			body, err = io.ReadAll(ctx.App.Reader)
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
		}

		retries := ctx.Int("retries")
		client := bridge.NewClient(logger.Sugar(), ctx.String("url"), bridge.WithCustomizeRetryableClient(func(r *retryablehttp.Client) {
			r.RetryMax = retries
		}))
		out, err := client.Post(ctx.Context, body)
		if err != nil {
			return err
		}
		_, err = ctx.App.Writer.Write(out)
		return err
	},
}
