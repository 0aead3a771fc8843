package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aether-labs/aether/internal/clip"
	"github.com/aether-labs/aether/internal/config"
	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/extract"
	"github.com/aether-labs/aether/internal/fsutil"
	"github.com/aether-labs/aether/internal/inference"
	"github.com/aether-labs/aether/internal/pipeline"
	"github.com/aether-labs/aether/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyze a document in the terminal",
	Long: `Run the full debate pipeline on a single document and print the report.

The file may be plain text, Markdown, CSV, JSON or an image. Use "-" to
read from standard input.

Examples:
  # Analyze a report and render it in the terminal
  aether analyze q3-report.txt

  # Save the session as JSON
  aether analyze q3-report.txt --output q3.json

  # Exercise the pipeline without calling any provider
  aether analyze q3-report.txt --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeOutput string
	analyzeFormat string
	analyzeDryRun bool
	analyzePlain  bool
	analyzeCopy   bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "",
		"write the result to a file")
	analyzeCmd.Flags().StringVarP(&analyzeFormat, "format", "f", "",
		"output file format (markdown, json, yaml); default from the file extension")
	analyzeCmd.Flags().BoolVar(&analyzeDryRun, "dry-run", false,
		"use canned replies instead of calling a provider")
	analyzeCmd.Flags().BoolVar(&analyzePlain, "plain", false,
		"print plain Markdown instead of rendering it")
	analyzeCmd.Flags().BoolVar(&analyzeCopy, "copy", false,
		"copy the Markdown report to the clipboard")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	out := cmd.OutOrStdout()

	format, err := outputFormat(analyzeOutput, analyzeFormat)
	if err != nil {
		return err
	}

	doc, err := readDocument(cmd.InOrStdin(), args[0], extract.New(cfg.Server.MaxUploadBytes))
	if err != nil {
		return err
	}

	var override []inference.Provider
	opts := pipelineOptions(cfg.Pipeline)
	if analyzeDryRun {
		override = append(override, newDryRunProvider())
		opts.FactorDelay, opts.CallDelay, opts.SynthesisDelay = 0, 0, 0
	}
	inv, err := newInvoker(cfg, logger, override...)
	if err != nil {
		return err
	}

	_, tty := terminalWidth(out)
	printer := newProgressPrinter(cmd.ErrOrStderr(), analyzePlain || !isTerminal(cmd.ErrOrStderr()))
	coordinator, err := pipeline.NewCoordinator(inv, printer,
		pipeline.WithOptions(opts),
		pipeline.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := core.NewSession(uuid.NewString(), doc)
	fmt.Fprintln(cmd.ErrOrStderr(), titleStyle.Render("aether")+mutedStyle.Render(" analyzing "+describe(doc)))
	_, runErr := coordinator.Run(ctx, s)
	snap := s.Snapshot()

	if analyzeOutput != "" {
		data, err := report.Export(snap, format)
		if err != nil {
			return err
		}
		if err := config.AtomicWrite(analyzeOutput, data); err != nil {
			return fmt.Errorf("writing %s: %w", analyzeOutput, err)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), successStyle.Render("✓")+" Wrote "+analyzeOutput)
	} else if err := printReport(out, snap, tty && !analyzePlain); err != nil {
		return err
	}

	if analyzeCopy {
		if err := copyReport(cmd.ErrOrStderr(), snap); err != nil {
			return err
		}
	}

	return runErr
}

func copyReport(w io.Writer, snap core.SessionSnapshot) error {
	md, err := report.Markdown(snap)
	if err != nil {
		return err
	}
	res, err := clip.New().Copy(md)
	if err != nil {
		return err
	}
	if res.Method == clip.MethodFile {
		fmt.Fprintln(w, warningStyle.Render("!")+" No clipboard available, report saved to "+res.FilePath)
		return nil
	}
	fmt.Fprintln(w, successStyle.Render("✓")+" Report copied to clipboard ("+string(res.Method)+")")
	return nil
}

// outputFormat resolves --format, falling back to the output extension.
func outputFormat(output, flag string) (report.Format, error) {
	if flag != "" {
		return report.ParseFormat(flag)
	}
	if ext := strings.TrimPrefix(filepath.Ext(output), "."); ext != "" {
		return report.ParseFormat(ext)
	}
	return report.FormatMarkdown, nil
}

func readDocument(stdin io.Reader, path string, ex *extract.Extractor) (core.Document, error) {
	if path == "-" {
		return ex.FromReader(stdin, "", "")
	}
	f, err := fsutil.OpenScoped(path)
	if err != nil {
		return core.Document{}, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()
	doc, err := ex.FromReader(f, filepath.Base(path), "")
	if core.IsUnsupportedInput(err) {
		return core.Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, err
}

func describe(doc core.Document) string {
	name := doc.Filename
	if name == "" {
		name = "stdin"
	}
	return fmt.Sprintf("%s (%s)", name, doc.Type)
}

// printReport writes the report body. Terminals get it rendered with
// glamour; everything else gets the Markdown document with frontmatter.
func printReport(w io.Writer, snap core.SessionSnapshot, render bool) error {
	if !render {
		md, err := report.Markdown(snap)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, md)
		return err
	}

	width, _ := terminalWidth(w)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("creating markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(report.Body(snap))
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	_, err = io.WriteString(w, rendered)
	return err
}

func isTerminal(w io.Writer) bool {
	_, ok := terminalWidth(w)
	return ok
}

// terminalWidth returns the wrap width for w and whether w is a terminal.
func terminalWidth(w io.Writer) (int, bool) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 80, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80, true
	}
	if width > 120 {
		width = 120
	}
	return width, true
}
