package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"labelocr/pkg/ocr"
	"labelocr/pkg/rename"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// detectorFactory builds the label reader; tests replace it with a stub.
var detectorFactory = func(cfg Config) (*ocr.Detector, error) {
	oc, err := cfg.OCRConfig()
	if err != nil {
		return nil, err
	}
	return ocr.NewDetector(oc, nil)
}

// recorderFactory picks the audit recorder; tests replace it with an in-memory one.
var recorderFactory = recorderFor

// parseArgs parses fs allowing flags before and after one positional argument.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func newFlagSet(name string, cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "verbose logging")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "parallel OCR workers")
	fs.StringVar(&cfg.SitePattern, "site-pattern", cfg.SitePattern, "regular expression for the site number")
	return fs
}

// prepare applies verbosity, validates cfg and builds the detector.
func prepare(cfg Config) (*ocr.Detector, error) {
	ocr.Verbose = cfg.Verbose
	rename.Verbose = cfg.Verbose
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return detectorFactory(cfg)
}

func cmdDetect(cfg Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("detect", &cfg)
	showText := fs.Bool("show-text", false, "print the extracted text")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return errors.New("detect needs exactly one image path")
	}
	det, err := prepare(cfg)
	if err != nil {
		return err
	}
	res := det.Detect(pos[0])
	fmt.Fprintf(stdout, "Image:      %s\n", pos[0])
	fmt.Fprintf(stdout, "Site:       %s\n", orDash(res.SiteNumber))
	fmt.Fprintf(stdout, "Artifact:   %s\n", orDash(res.ArtifactNumber))
	fmt.Fprintf(stdout, "Confidence: %.2f\n", res.Confidence)
	if name, ok := res.Filename(filepath.Ext(pos[0])); ok {
		fmt.Fprintf(stdout, "New name:   %s\n", name)
	}
	if *showText {
		fmt.Fprintf(stdout, "\n--- extracted text ---\n%s\n", res.RawText)
	}
	if !res.IsValid() {
		return errDetectionFailed
	}
	return nil
}

func cmdRename(cfg Config, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := newFlagSet("rename", &cfg)
	dir := fs.String("d", "", "process every matching image in this directory")
	outDir := fs.String("o", "", "copy renamed files into this directory instead of renaming in place")
	pattern := fs.String("p", rename.DefaultPattern, "file pattern for -d")
	dryRun := fs.Bool("dry-run", false, "show what would happen without changing files")
	noBackup := fs.Bool("no-backup", false, "do not keep a copy of the original in backup/")
	overwrite := fs.Bool("overwrite", false, "replace existing files with the same name")
	noRecursive := fs.Bool("no-recursive", false, "do not descend into subdirectories")
	force := fs.Bool("force", false, "skip the confirmation prompt")
	noLog := fs.Bool("no-log", false, "do not write CSV/JSON/XLSX logs")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if (*dir == "") == (len(pos) == 0) || len(pos) > 1 {
		return errors.New("rename needs either one image path or -d <dir>")
	}
	det, err := prepare(cfg)
	if err != nil {
		return err
	}
	opts := rename.Options{
		DryRun:    *dryRun,
		Backup:    !*noBackup,
		Overwrite: *overwrite,
		OutputDir: *outDir,
	}
	if !*dryRun {
		opts.Recorder = recorderFactory(cfg, "cli")
	}
	r := rename.New(det, opts)

	if *dir == "" {
		out := r.RenameFile(pos[0])
		fmt.Fprintln(stdout, out.Message)
		if opts.Recorder != nil {
			if err := opts.Recorder.Record(uuid.NewString(), []rename.Outcome{out}); err != nil {
				log.Printf("WARN recording %s: %v", out.Original, err)
			}
		}
		if !out.Success {
			return errDetectionFailed
		}
		return nil
	}

	if *outDir == "" && !*dryRun && !*force {
		fmt.Fprintf(stdout, "This will rename files in %s in place. Continue? [y/N] ", *dir)
		if !confirm(stdin) {
			fmt.Fprintln(stdout, "Aborted.")
			return nil
		}
	}
	rep, err := r.RenameBatch(*dir, rename.BatchOptions{
		Pattern:   *pattern,
		Recursive: !*noRecursive,
		WriteLog:  !*noLog && !*dryRun,
		Workers:   cfg.Workers,
	})
	if err != nil {
		return err
	}
	for _, o := range rep.Outcomes {
		mark := "✓"
		if !o.Success {
			mark = "✗"
		}
		fmt.Fprintf(stdout, "  %s %s\n", mark, o.Message)
	}
	fmt.Fprintf(stdout, "\nProcessed %d files: %d succeeded, %d failed\n", rep.Total, rep.Success, rep.Failed)
	for _, p := range rep.LogFiles {
		fmt.Fprintf(stdout, "Log: %s\n", p)
	}
	return nil
}

func cmdPreview(cfg Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("preview", &cfg)
	pattern := fs.String("p", rename.DefaultPattern, "file pattern")
	noRecursive := fs.Bool("no-recursive", false, "do not descend into subdirectories")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return errors.New("preview needs a directory")
	}
	det, err := prepare(cfg)
	if err != nil {
		return err
	}
	previews, err := rename.New(det, rename.Options{}).PreviewBatch(pos[0], *pattern, !*noRecursive, cfg.Workers)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORIGINAL\tNEW NAME\tSITE\tARTIFACT\tSTATUS")
	ready := 0
	for _, p := range previews {
		status := "✗ Detection failed"
		if p.Ready {
			status = "✓ Ready"
			ready++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Original, p.NewName, orDash(p.Site), orDash(p.Artifact), status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "\n%d of %d files ready\n", ready, len(previews))
	return nil
}

func cmdWatch(cfg Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("watch", &cfg)
	outDir := fs.String("o", "", "copy renamed files into this directory")
	pattern := fs.String("p", rename.DefaultPattern, "file pattern")
	noBackup := fs.Bool("no-backup", false, "do not keep a copy of the original in backup/")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return errors.New("watch needs a directory")
	}
	det, err := prepare(cfg)
	if err != nil {
		return err
	}
	r := rename.New(det, rename.Options{Backup: !*noBackup, OutputDir: *outDir, Recorder: recorderFactory(cfg, "watch")})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Watch(ctx, pos[0], rename.WatchOptions{
		Pattern:   *pattern,
		OnOutcome: func(o rename.Outcome) { fmt.Fprintln(stdout, o.Message) },
	})
}

func cmdWeb(cfg Config, args []string) error {
	fs := newFlagSet("web", &cfg)
	fs.StringVar(&cfg.WebAddr, "addr", cfg.WebAddr, "listen address")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	det, err := prepare(cfg)
	if err != nil {
		return err
	}
	if cfg.WebPasswordHash == "" && !strings.HasPrefix(cfg.WebAddr, "127.0.0.1") && !strings.HasPrefix(cfg.WebAddr, "localhost") {
		log.Printf("WARN web UI on %s has no password; set WEB_PASSWORD_HASH", cfg.WebAddr)
	}
	s := newServer(cfg, det, recorderFactory(cfg, "web"))
	r := gin.Default()
	s.setupRoutes(r)
	log.Printf("Serving on http://%s", cfg.WebAddr)
	return r.Run(cfg.WebAddr)
}

func cmdMigrate(cfg Config) error {
	cfg.DBAutoMigrate = true
	if err := initDB(cfg); err != nil {
		return err
	}
	fmt.Println("migration completed")
	return nil
}

func cmdHistory(cfg Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("history", &cfg)
	limit := fs.Int("limit", 20, "number of rows")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	if *limit < 1 {
		return errors.New("-limit must be positive")
	}
	cfg.DBAutoMigrate = false
	if err := initDB(cfg); err != nil {
		return err
	}
	rows, err := recentDetections(*limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tORIGINAL\tNEW NAME\tSITE\tARTIFACT\tOK")
	for _, d := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%v\n", d.CreatedAt.Format("2006-01-02 15:04:05"),
			d.OriginalName, orDash(d.NewName), orDash(d.SiteNumber), orDash(d.ArtifactNumber), d.Success)
	}
	return tw.Flush()
}

func confirm(r io.Reader) bool {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// cmdPreprocess writes the image OCR would see, for tuning OCR_PREPROCESS.
func cmdPreprocess(cfg Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("preprocess", &cfg)
	mode := fs.String("mode", cfg.Preprocess, "light or heavy")
	out := fs.String("o", "", "output image (default <name>.ocr.png next to the input)")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return errors.New("preprocess needs exactly one image path")
	}
	pp, err := ocr.ParsePreprocess(*mode)
	if err != nil {
		return err
	}
	img, err := ocr.PreprocessFile(pos[0], pp)
	if err != nil {
		return err
	}
	dst := *out
	if dst == "" {
		dst = strings.TrimSuffix(pos[0], filepath.Ext(pos[0])) + ".ocr.png"
	}
	if err := imaging.Save(img, dst); err != nil {
		return fmt.Errorf("save %s: %w", dst, err)
	}
	fmt.Fprintf(stdout, "Wrote %s (%s)\n", dst, pp)
	return nil
}

// cmdHashPassword prints a bcrypt hash for WEB_PASSWORD_HASH.
func cmdHashPassword(args []string, stdout io.Writer) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("hash-password needs the password as its only argument")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, string(h))
	return nil
}

func cmdReport(cfg Config, args []string, stdout io.Writer) error {
	fs := newFlagSet("report", &cfg)
	month := fs.String("month", time.Now().UTC().Format("2006-01"), "month as YYYY-MM (UTC)")
	list := fs.Bool("list", false, "list failed detections of the month")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	start, err := time.Parse("2006-01", *month)
	if err != nil {
		return fmt.Errorf("invalid month format, expected YYYY-MM: %w", err)
	}
	cfg.DBAutoMigrate = false
	if err := initDB(cfg); err != nil {
		return err
	}
	rep, err := monthlyReport(start)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Report for %s (UTC):\n", *month)
	fmt.Fprintf(stdout, "  runs=%d photos=%d renamed=%d failed=%d\n", rep.Runs, rep.Photos, rep.Renamed, rep.Failed)
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  SITE\tPHOTOS")
	for _, s := range rep.Sites {
		fmt.Fprintf(tw, "  %s\t%d\n", s.SiteNumber, s.Photos)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if *list {
		for _, d := range rep.FailedRows {
			fmt.Fprintf(stdout, "%d|%s|%s|%s\n", d.ID, d.OriginalName, d.CreatedAt.Format(time.RFC3339), d.Message)
		}
	}
	return nil
}
