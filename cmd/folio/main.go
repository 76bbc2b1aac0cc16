// Command folio converts a PDF into structured JSON, running table detection
// and recognition over every selected page.
// Usage: folio [flags] input.pdf
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"folio/internal/app"
	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/logger"
	"folio/internal/output"
	"folio/internal/tableexport"
)

type options struct {
	pages       string
	out         string
	csvPath     string
	xlsxPath    string
	indent      bool
	omitImages  bool
	performance bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "folio:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("folio", pflag.ContinueOnError)
	config.Flags(fs)

	var opts options
	fs.StringVarP(&opts.pages, "pages", "p", "", `zero-based pages to convert, e.g. "0,2,5-9" (default all)`)
	fs.StringVarP(&opts.out, "output", "o", "-", "JSON output path; - writes to stdout")
	fs.StringVar(&opts.csvPath, "csv", "", "also write every table to this CSV file")
	fs.StringVar(&opts.xlsxPath, "xlsx", "", "also write every table to this XLSX workbook")
	fs.BoolVar(&opts.indent, "indent", false, "indent the JSON output")
	fs.BoolVar(&opts.omitImages, "omit-images", false, "leave image bytes out of the JSON output")
	fs.BoolVar(&opts.performance, "performance", false, "include per-stage timings in the JSON output")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: folio [flags] input.pdf")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one input file, got %d", fs.NArg())
	}
	input := fs.Arg(0)

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	pages, err := domain.ParsePageList(opts.pages)
	if err != nil {
		return err
	}

	orch, err := app.NewOrchestrator(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	res, err := orch.Read(ctx, input, pages)
	if err != nil {
		return err
	}
	log.Info("conversion finished",
		"input", input,
		"pages", len(res.Content),
		"tables", len(res.Tables()),
		"elapsed", time.Since(start),
	)

	if err := writeTo(opts.out, func(w io.Writer) error {
		return output.Encode(w, res, output.Options{
			Indent:        opts.indent,
			OmitImageData: opts.omitImages,
			Performance:   opts.performance,
		})
	}); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	tables := res.Tables()
	if opts.csvPath != "" {
		if err := writeTo(opts.csvPath, func(w io.Writer) error {
			cw := tableexport.NewWriter(w)
			if err := cw.WriteTables(tables); err != nil {
				return err
			}
			cw.Flush()
			return cw.Error()
		}); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
	}
	if opts.xlsxPath != "" {
		if err := writeTo(opts.xlsxPath, func(w io.Writer) error {
			return tableexport.WriteXLSX(w, tables)
		}); err != nil {
			return fmt.Errorf("writing xlsx: %w", err)
		}
	}
	return nil
}

// writeTo creates path, or uses stdout for "-", and hands it to write.
func writeTo(path string, write func(io.Writer) error) (err error) {
	if path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}
