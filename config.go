package main

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"labelocr/pkg/ocr"
)

// Config is read from the environment (after .env) and adjusted by command flags.
type Config struct {
	SitePattern     string
	KnownSite       string
	Language        string
	TessdataPrefix  string
	Preprocess      string
	RetryHeavy      bool
	Workers         int
	DBDSN           string
	DBAutoMigrate   bool
	WebAddr         string
	WebPasswordHash string
	JWTSecret       string
	UploadBase      string
	Verbose         bool
}

// devJWTSecret signs web sessions when no password is configured. It is public, so
// Validate refuses it once WEB_PASSWORD_HASH turns authentication on.
const devJWTSecret = "dev-insecure-secret-change"

func loadConfig() Config {
	cfg := Config{
		SitePattern:     getEnvOrDefault("SITE_PATTERN", ocr.DefaultSitePattern),
		Language:        getEnvOrDefault("OCR_LANG", "eng"),
		TessdataPrefix:  os.Getenv("TESSDATA_PREFIX"),
		Preprocess:      getEnvOrDefault("OCR_PREPROCESS", string(ocr.PreprocessLight)),
		RetryHeavy:      envBool("OCR_RETRY_HEAVY", false),
		Workers:         runtime.NumCPU(),
		DBDSN:           os.Getenv("DB_DSN"),
		DBAutoMigrate:   envBool("DB_AUTO_MIGRATE", true),
		WebAddr:         getEnvOrDefault("WEB_ADDR", "127.0.0.1:5000"),
		WebPasswordHash: os.Getenv("WEB_PASSWORD_HASH"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", devJWTSecret),
		UploadBase:      getEnvOrDefault("UPLOAD_BASE", "uploads"),
		Verbose:         envBool("LABELOCR_VERBOSE", false),
	}
	// an explicitly empty KNOWN_SITE turns reconstruction off
	if v, ok := os.LookupEnv("KNOWN_SITE"); ok {
		cfg.KnownSite = strings.TrimSpace(v)
	} else {
		cfg.KnownSite = ocr.DefaultKnownSite
	}
	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		} else {
			cfg.Workers = -1
		}
	}
	return cfg
}

// Validate rejects settings that would only fail later, deep inside a batch.
func (c Config) Validate() error {
	var errs []error
	if _, err := regexp.Compile(`(?i)` + c.SitePattern); err != nil {
		errs = append(errs, fmt.Errorf("SITE_PATTERN: %w", err))
	}
	if _, err := ocr.ParsePreprocess(c.Preprocess); err != nil {
		errs = append(errs, fmt.Errorf("OCR_PREPROCESS: %w", err))
	}
	if c.Workers < 1 {
		errs = append(errs, errors.New("WORKERS must be a positive integer"))
	}
	if c.Language == "" {
		errs = append(errs, errors.New("OCR_LANG must not be empty"))
	}
	if c.WebPasswordHash != "" {
		if !strings.HasPrefix(c.WebPasswordHash, "$2") {
			errs = append(errs, errors.New("WEB_PASSWORD_HASH must be a bcrypt hash"))
		}
		if c.JWTSecret == "" || c.JWTSecret == devJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET must be set to a private value when WEB_PASSWORD_HASH is set"))
		}
	}
	return errors.Join(errs...)
}

// OCRConfig converts the settings for ocr.NewDetector.
func (c Config) OCRConfig() (ocr.Config, error) {
	pp, err := ocr.ParsePreprocess(c.Preprocess)
	if err != nil {
		return ocr.Config{}, err
	}
	return ocr.Config{
		SitePattern:    c.SitePattern,
		KnownSite:      c.KnownSite,
		Language:       c.Language,
		TessdataPrefix: c.TessdataPrefix,
		Preprocess:     pp,
		RetryHeavy:     c.RetryHeavy,
	}, nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "false", "0", "no", "off":
		return false
	}
	return true
}
