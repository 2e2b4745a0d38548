package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init initializes the global logger with dual sinks: os.Stderr and a rotating file.
func Init(verbose bool) {
	// 0. Load .env from the binary directory so log settings are available.
	// Init runs before config.Load.
	exePath, err := os.Executable()
	if err == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exePath), ".env"))
	}
	_ = godotenv.Load()

	// 1. Determine log level
	level := zerolog.InfoLevel
	if parsed, perr := zerolog.ParseLevel(os.Getenv("MOBIUS_LOG_LEVEL")); perr == nil && os.Getenv("MOBIUS_LOG_LEVEL") != "" {
		level = parsed
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	var writers []io.Writer

	// 2. Stderr writer, colorized only when attached to a terminal
	if os.Getenv("MOBIUS_LOG_CONSOLE") != "false" {
		isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
			NoColor:    !isTerminal,
		})
	}

	// 3. Rotating file writer
	logFile := os.Getenv("MOBIUS_LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join("logs", "mobius.log")
	}
	if mkErr := os.MkdirAll(filepath.Dir(logFile), 0755); mkErr != nil {
		// Console-only fallback; a service without a writable log dir should
		// still come up.
		log.Warn().Err(mkErr).Str("path", logFile).Msg("Log directory not writable, console only")
	} else {
		writers = append(writers, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    16, // megabytes
			MaxBackups: 32,
			MaxAge:     365, // days
			Compress:   true,
		})
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	// 4. Set global logger
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Logger()
}
