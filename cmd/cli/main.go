// cmd/cli/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dewmguy/discordmusic/internal/config"
	"github.com/dewmguy/discordmusic/internal/logger"
	"github.com/dewmguy/discordmusic/pkg/cmd"
	"github.com/fatih/color"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("discordmusic-cli", flag.ContinueOnError)
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		usage(fs)
		return 2
	}

	cfg, err := config.LoadTools()
	if err != nil {
		color.Red("config: %v", err)
		return 1
	}

	level := cfg.LogLevel
	if *verbose {
		level = "debug"
	}
	log := logger.New(logger.Options{Level: level, File: cfg.LogFile, MaxSizeMB: cfg.LogMaxSizeMB, MaxBackups: cfg.LogMaxBackups})
	zlog.Logger = log

	reg := cmd.NewRegistry()
	registerTools(reg, &tools{cfg: cfg, log: log, out: os.Stdout})

	c, ok := reg.Get(fs.Arg(0))
	if !ok {
		color.Red("unknown command %q", fs.Arg(0))
		usage(fs)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.Run(ctx, &cmd.Invocation{Args: fs.Args()[1:]}); err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			color.Yellow("usage: %s %s", c.Name(), ue.Error())
			return 2
		}
		color.Red("%s: %v", c.Name(), err)
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "usage: %s [-v] <command> [args]\n\ncommands:\n", fs.Name())
	reg := cmd.NewRegistry()
	registerTools(reg, &tools{})
	for _, c := range reg.All() {
		fmt.Fprintf(fs.Output(), "  %-8s %s\n", c.Name(), c.Description())
	}
}
