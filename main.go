package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
)

var version = "dev"

const usage = `labelocr renames artifact photos after the site and artifact numbers on their label cards.

Usage:
  labelocr detect <image> [-show-text]
  labelocr rename <image> | -d <dir> [-o out] [-p pattern] [-dry-run] [-no-backup]
                  [-overwrite] [-no-recursive] [-force]
  labelocr preview <dir> [-p pattern] [-no-recursive]
  labelocr watch <dir> [-o out] [-p pattern] [-no-backup]
  labelocr web [-addr host:port]
  labelocr preprocess <image> [-mode light|heavy] [-o out.png]
  labelocr hash-password <password>
  labelocr migrate
  labelocr history [-limit n]
  labelocr report [-month YYYY-MM] [-list]
  labelocr version

Settings are read from the environment and ./.env (SITE_PATTERN, KNOWN_SITE, OCR_LANG,
TESSDATA_PREFIX, OCR_PREPROCESS, OCR_RETRY_HEAVY, WORKERS, DB_DSN, WEB_ADDR, WEB_PASSWORD_HASH, JWT_SECRET,
UPLOAD_BASE). Every command accepts -v for verbose logging.
`

// errDetectionFailed makes detect exit 1 without printing an extra error line.
var errDetectionFailed = errors.New("detection failed")

func main() {
	// a missing .env is normal
	_ = godotenv.Load()
	log.SetFlags(log.LstdFlags)
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

func run(args []string, stdin io.Reader, stdout io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	cfg := loadConfig()
	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "detect":
		err = cmdDetect(cfg, rest, stdout)
	case "rename":
		err = cmdRename(cfg, rest, stdin, stdout)
	case "preview":
		err = cmdPreview(cfg, rest, stdout)
	case "watch":
		err = cmdWatch(cfg, rest, stdout)
	case "web":
		err = cmdWeb(cfg, rest)
	case "preprocess":
		err = cmdPreprocess(cfg, rest, stdout)
	case "hash-password":
		err = cmdHashPassword(rest, stdout)
	case "report":
		err = cmdReport(cfg, rest, stdout)
	case "migrate":
		err = cmdMigrate(cfg)
	case "history":
		err = cmdHistory(cfg, rest, stdout)
	case "version":
		fmt.Fprintln(stdout, "labelocr", version)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		if !errors.Is(err, errDetectionFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}
