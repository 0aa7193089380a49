// Command gattlink scans and talks to peripherals on the simulated radio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/user/gattlink/central"
	"github.com/user/gattlink/config"
	"github.com/user/gattlink/logger"
	"github.com/user/gattlink/simradio"
	"github.com/user/gattlink/tracing"
	"github.com/user/gattlink/util"
)

func main() {
	app := cli.NewApp()
	app.Name = "gattlink"
	app.Usage = "BLE central against a simulated radio"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Path to the YAML config file",
			Value: util.GetConfigPath(),
		},
		cli.StringFlag{
			Name:  "log-level, l",
			Usage: "Override the configured log level (trace, debug, info, warn, error)",
		},
	}
	app.Commands = []cli.Command{
		cli.Command{
			Name:  "scan",
			Usage: "List advertising peripherals",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "duration, d",
					Usage: "Scan duration (defaults to the configured one)",
				},
				cli.IntFlag{
					Name:  "limit, n",
					Usage: "Stop after this many peripherals",
				},
				cli.StringFlag{
					Name:  "name",
					Usage: "Only report peripherals advertising this complete local name",
				},
				cli.BoolFlag{
					Name:  "high-power",
					Usage: "Start with a low-latency pre-scan",
				},
			},
			Action: scanCommand,
		},
		cli.Command{
			Name:      "exchange",
			Usage:     "Connect, subscribe and write a message to the echo peripheral",
			ArgsUsage: "[message]",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "address, a",
					Usage: "Peripheral address",
					Value: echoAddress,
				},
				cli.IntFlag{
					Name:  "mtu",
					Usage: "Request this ATT MTU before writing (0 keeps the default)",
				},
			},
			Action: exchangeCommand,
		},
		cli.Command{
			Name:   "config",
			Usage:  "Print the effective configuration",
			Action: configCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env holds what every command needs
type env struct {
	cfg      *config.Config
	central  *central.Central
	shutdown func(context.Context) error
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	if level := c.GlobalString("log-level"); level != "" {
		cfg.Logger.Level = level
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logger.Level))

	shutdown, err := tracing.Setup(context.Background(), cfg.Tracer)
	if err != nil {
		return nil, err
	}

	adapter := simradio.New(simradio.FromConfig(cfg.Simulation), simradio.WithLogger(logger.Default()))
	if err := populate(adapter); err != nil {
		return nil, err
	}
	return &env{cfg: cfg, central: central.New(adapter, cfg), shutdown: shutdown}, nil
}

func (e *env) close() {
	e.central.Close()
	if err := e.shutdown(context.Background()); err != nil {
		logger.Warn("gattlink", "tracer shutdown: %v", err)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func configCommand(c *cli.Context) error {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return err
	}
	out, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}
