package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dewmguy/discordmusic/internal/config"
	"github.com/dewmguy/discordmusic/internal/music/setup"
	"github.com/dewmguy/discordmusic/internal/music/source_resolver"
	"github.com/dewmguy/discordmusic/internal/music/sources"
	"github.com/dewmguy/discordmusic/pkg/cmd"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

type usageError string

func (e usageError) Error() string { return string(e) }

// tool adapts a function to cmd.Command.
type tool struct {
	name, description, usage string
	minArgs                  int
	run                      func(ctx context.Context, args []string) error
}

func (t *tool) Name() string        { return t.name }
func (t *tool) Description() string { return t.description }

func (t *tool) Run(ctx context.Context, inv *cmd.Invocation) error {
	if len(inv.Args) < t.minArgs {
		return usageError(t.usage)
	}
	return t.run(ctx, inv.Args)
}

type tools struct {
	cfg *config.Config
	log zerolog.Logger
	out io.Writer
}

func registerTools(reg *cmd.Registry, t *tools) {
	for _, tl := range []*tool{
		{name: "resolve", description: "print the track a query resolves to", usage: "<query or url>", minArgs: 1, run: t.resolve},
		{name: "expand", description: "list every entry of a playlist as it is resolved", usage: "<playlist url>", minArgs: 1, run: t.expand},
		{name: "pipe", description: "stream a track's PCM into a file (- for stdout)", usage: "<query or url> <file>", minArgs: 2, run: t.pipe},
	} {
		if err := reg.Register(tl); err != nil {
			panic(err)
		}
	}
}

func (t *tools) resolver() (*source_resolver.Resolver, error) {
	return setup.Resolver(t.cfg, t.log)
}

func (t *tools) resolve(ctx context.Context, args []string) error {
	r, err := t.resolver()
	if err != nil {
		return err
	}
	tracks, err := r.Resolve(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	for _, tr := range tracks {
		t.printTrack(0, tr)
	}
	return nil
}

func (t *tools) expand(ctx context.Context, args []string) error {
	r, err := t.resolver()
	if err != nil {
		return err
	}
	seen := 0
	n, err := r.ResolveAll(ctx, args[0], func(tr sources.Track) error {
		seen++
		t.printTrack(seen, tr)
		return nil
	})
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(t.out, "%d tracks\n", n)
	return nil
}

func (t *tools) pipe(ctx context.Context, args []string) error {
	r, err := t.resolver()
	if err != nil {
		return err
	}
	tracks, err := r.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	track := tracks[0]

	factory, err := setup.Pipelines(t.cfg, t.log)
	if err != nil {
		return err
	}

	var dst io.Writer = os.Stdout
	if args[1] != "-" {
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		dst = f
	}

	p := factory.New()
	audio, err := p.Start(ctx, track)
	if err != nil {
		return err
	}
	defer p.Stop()

	// progress goes to stderr so stdout can carry the audio
	color.New(color.FgCyan).Fprintf(os.Stderr, "streaming %s\n", track)
	n, copyErr := io.Copy(dst, audio)
	<-p.Done()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := p.Err(); err != nil {
		return err
	}
	if copyErr != nil {
		return copyErr
	}
	color.New(color.FgGreen).Fprintf(os.Stderr, "%d bytes of PCM (%d Hz, %d ch)\n", n, t.cfg.SampleRate, t.cfg.Channels)
	return nil
}

// printTrack writes one track; n > 0 prefixes its position in a playlist.
func (t *tools) printTrack(n int, tr sources.Track) {
	prefix := ""
	if n > 0 {
		prefix = fmt.Sprintf("%3d. ", n)
	}
	title := color.New(color.Bold).Sprint(tr.Title)
	fmt.Fprintf(t.out, "%s%s %s\n", prefix, color.New(color.FgYellow).Sprintf("[%s]", tr.Extractor), title)
	if tr.Uploader != "" {
		fmt.Fprintf(t.out, "    by %s\n", tr.Uploader)
	}
	fmt.Fprintf(t.out, "    %s\n", color.New(color.FgBlue).Sprint(tr.URL))
}
