// lrcdump 解析 .lrc 文件并输出时间轴，便于检查歌词同步结果
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"lyricsync/internal/lyrics"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// timeline 一个输入文件的解析结果
type timeline struct {
	Source string        `json:"source" yaml:"source"`
	Lines  []lyrics.Line `json:"lines" yaml:"lines"`
}

type options struct {
	format   string
	parse    lyrics.Options
	realOnly bool
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(context.Background(), os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("lrcdump failed")
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("lrcdump", flag.ContinueOnError)
	format := fs.String("format", "json", "output format: json or yaml")
	leading := fs.Int("leading", lyrics.DefaultLeadingPlaceholders, "number of leading placeholders")
	trailing := fs.Int("trailing", lyrics.DefaultTrailingPlaceholders, "number of trailing placeholders")
	sentinel := fs.Float64("sentinel", lyrics.DefaultTrailingStart, "time of the first trailing placeholder")
	realOnly := fs.Bool("real", false, "omit placeholder lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != "json" && *format != "yaml" {
		return fmt.Errorf("unknown format %q", *format)
	}

	opts := options{
		format:   *format,
		parse:    lyrics.Options{LeadingPlaceholders: *leading, TrailingPlaceholders: *trailing, TrailingStart: *sentinel},
		realOnly: *realOnly,
	}

	var results []timeline
	if fs.NArg() == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		results = []timeline{opts.parseOne("-", string(data))}
	} else {
		var err error
		if results, err = opts.parseFiles(ctx, fs.Args()); err != nil {
			return err
		}
	}
	return opts.write(stdout, results)
}

func (o options) parseOne(source, lrc string) timeline {
	lines := lyrics.ParseWithOptions(lrc, o.parse)
	if o.realOnly {
		lines = lyrics.RealLines(lines)
	}
	return timeline{Source: source, Lines: lines}
}

// parseFiles 并发解析，结果按参数顺序返回
func (o options) parseFiles(ctx context.Context, paths []string) ([]timeline, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	results := make([]timeline, len(paths))
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = o.parseOne(path, string(data))
			log.Debug().Str("file", path).Int("lines", len(results[i].Lines)).Msg("Parsed")
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (o options) write(w io.Writer, results []timeline) error {
	if o.format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		for _, r := range results {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("encode %s: %w", r.Source, err)
			}
		}
		return nil
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode %s: %w", r.Source, err)
		}
	}
	return nil
}
