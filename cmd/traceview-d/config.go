package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmax-ai/traceview/pkg/ingest"
)

const (
	defaultAddr          = "127.0.0.1:8095"
	defaultLogLevel      = "info"
	defaultWebAssetsMode = "embedded"
)

type Config struct {
	Addr          string
	MetaModelPath string
	ReplayPath    string
	WatchDir      string
	RedisAddr     string
	RedisChannel  string
	LogLevel      slog.Level
	WebAssetsMode string
	WebDir        string
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	flagSet := flag.NewFlagSet("traceview-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagAddr := flagSet.String("addr", addrFromEnv(defaultAddr), "HTTP listen address")
	flagMeta := flagSet.String("meta-model", os.Getenv("TRACEVIEW_META_MODEL"), "path to meta-model JSON (built-in actor runtime if empty)")
	flagReplay := flagSet.String("replay", os.Getenv("TRACEVIEW_REPLAY"), "trace file (JSON or JSONL) to ingest at startup")
	flagWatch := flagSet.String("watch-dir", os.Getenv("TRACEVIEW_WATCH_DIR"), "directory to ingest dropped trace files from")
	flagRedis := flagSet.String("redis-addr", os.Getenv("TRACEVIEW_REDIS_ADDR"), "Redis address for pub/sub ingestion")
	flagChannel := flagSet.String("redis-channel", envOrDefault("TRACEVIEW_REDIS_CHANNEL", ingest.DefaultChannel), "Redis channel carrying trace updates")
	flagLogLevel := flagSet.String("log-level", envOrDefault("TRACEVIEW_LOG_LEVEL", defaultLogLevel), "log level: debug|info|warn|error")
	flagWebAssets := flagSet.String("web-assets", envOrDefault("TRACEVIEW_WEB_ASSETS_MODE", defaultWebAssetsMode), "web assets mode: embedded|fs|off")
	flagWebDir := flagSet.String("web-dir", os.Getenv("TRACEVIEW_WEB_DIR"), "web assets directory when web-assets=fs")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
			return Config{}, err
		}
		return Config{}, err
	}

	level, err := parseLogLevel(*flagLogLevel)
	if err != nil {
		return Config{}, err
	}

	config := Config{
		Addr:          strings.TrimSpace(*flagAddr),
		MetaModelPath: resolvePath(*flagMeta, cwd),
		ReplayPath:    resolvePath(*flagReplay, cwd),
		WatchDir:      resolvePath(*flagWatch, cwd),
		RedisAddr:     strings.TrimSpace(*flagRedis),
		RedisChannel:  strings.TrimSpace(*flagChannel),
		LogLevel:      level,
		WebAssetsMode: normalizeWebAssetsMode(*flagWebAssets),
		WebDir:        strings.TrimSpace(*flagWebDir),
	}

	if config.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if config.RedisAddr != "" && config.RedisChannel == "" {
		return Config{}, errors.New("redis-channel cannot be empty when redis-addr is set")
	}

	if config.WebAssetsMode == "fs" {
		if config.WebDir == "" {
			return Config{}, errors.New("web-assets=fs requires web-dir")
		}
		config.WebDir = resolvePath(config.WebDir, cwd)
	}
	if config.WebAssetsMode != "embedded" && config.WebAssetsMode != "fs" && config.WebAssetsMode != "off" {
		return Config{}, fmt.Errorf("unsupported web-assets mode: %s", config.WebAssetsMode)
	}

	return config, nil
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func addrFromEnv(fallback string) string {
	if value := os.Getenv("TRACEVIEW_ADDR"); value != "" {
		return value
	}
	if port := os.Getenv("TRACEVIEW_PORT"); port != "" {
		return fmt.Sprintf("127.0.0.1:%s", port)
	}
	return fallback
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}

func normalizeWebAssetsMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "embedded":
		return "embedded"
	case "fs", "dir", "directory":
		return "fs"
	case "off", "disabled", "none":
		return "off"
	default:
		return strings.ToLower(strings.TrimSpace(mode))
	}
}
