// Package cli is the aptfit command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/airperm/aptfit/mods"
	"github.com/airperm/aptfit/mods/config"
	"github.com/airperm/aptfit/mods/logging"
	"github.com/alecthomas/kong"
)

type Globals struct {
	Config   []string `name:"config" short:"c" help:"configuration file, may be repeated"`
	LogLevel string   `name:"log-level" help:"log level: TRACE, DEBUG, INFO, WARN, ERROR or NONE"`
	LogFile  string   `name:"log-file" help:"log file, '-' for stderr"`

	Stdout io.Writer `kong:"-"`
}

type CLI struct {
	Globals

	Fit       FitCmd       `cmd:"" help:"Fit the decay model to every specimen and print a summary"`
	Bands     BandsCmd     `cmd:"" help:"Print the confidence and prediction bands of one specimen"`
	History   HistoryCmd   `cmd:"" help:"Show stored fit runs or the history of one specimen"`
	GenConfig GenConfigCmd `cmd:"" name:"gen-config" help:"Print the default configuration"`
	Version   VersionCmd   `cmd:"" help:"Show version"`
}

func options(stdout, stderr io.Writer) []kong.Option {
	return []kong.Option{
		kong.Name("aptfit"),
		kong.Description("Air permeation pressure decay fitting"),
		kong.HelpOptions{NoAppSummary: false, Compact: true, FlagsLast: true},
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
	}
}

func Main() int {
	var cli CLI
	ctx := kong.Parse(&cli, options(os.Stdout, os.Stderr)...)
	cli.Stdout = os.Stdout
	if err := ctx.Run(&cli.Globals); err != nil {
		fmt.Fprintf(os.Stderr, "aptfit: %s\n", err.Error())
		return 1
	}
	return 0
}

// Run parses args and runs the selected command with its output on stdout.
func Run(args []string, stdout io.Writer) error {
	var cli CLI
	opts := append(options(stdout, stdout), kong.Exit(func(int) {}))
	parser, err := kong.New(&cli, opts...)
	if err != nil {
		return err
	}
	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	cli.Stdout = stdout
	return ctx.Run(&cli.Globals)
}

// load reads the configuration files and applies the global flags.
func (g *Globals) load() (*config.Config, error) {
	cfg := config.Default()
	if len(g.Config) > 0 {
		var err error
		if cfg, err = config.Load(g.Config...); err != nil {
			return nil, err
		}
	}
	if g.LogLevel != "" {
		cfg.Log.DefaultLevel = g.LogLevel
	}
	if g.LogFile != "" {
		cfg.Log.Filename = g.LogFile
	}
	return cfg, nil
}

func (g *Globals) setup(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return logging.Configure(cfg.Log)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

type GenConfigCmd struct {
	Output string `name:"output" short:"o" help:"write to file instead of stdout"`
}

func (cmd *GenConfigCmd) Run(g *Globals) error {
	if cmd.Output == "" {
		_, err := io.WriteString(g.Stdout, config.DefaultText)
		return err
	}
	return os.WriteFile(cmd.Output, []byte(config.DefaultText), 0o644)
}

type VersionCmd struct {
	Check string `name:"check" help:"fail unless the version satisfies this constraint, e.g. '>= 1.2'"`
}

func (cmd *VersionCmd) Run(g *Globals) error {
	if cmd.Check != "" {
		ok, err := mods.CheckVersion(cmd.Check)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("version %s does not satisfy %q", mods.DisplayVersion(), cmd.Check)
		}
	}
	_, err := fmt.Fprintf(g.Stdout, "aptfit %s\n", mods.VersionString())
	return err
}
