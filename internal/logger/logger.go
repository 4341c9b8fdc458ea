package logger

import (
	"io"
	stdlog "log"

	"github.com/aleister1102/procwatch/internal/common"
	"github.com/aleister1102/procwatch/internal/config"

	"github.com/rs/zerolog"
)

// New builds a zerolog logger from the application log configuration:
// console and/or rotated file output in the configured format and level.
// The standard library logger is redirected into the zerolog instance.
func New(cfg config.LogConfig) (zerolog.Logger, error) {
	loggerCfg := convertConfig(cfg)

	writers, err := createWriters(loggerCfg)
	if err != nil {
		return zerolog.Logger{}, err
	}

	multiWriter := zerolog.MultiLevelWriter(writers...)
	instance := zerolog.New(multiWriter).
		Level(loggerCfg.Level).
		With().
		Timestamp().
		Logger()

	zerolog.SetGlobalLevel(loggerCfg.Level)
	stdlog.SetOutput(instance)
	stdlog.SetFlags(0)

	return instance, nil
}

// convertConfig converts application config to logger config
func convertConfig(cfg config.LogConfig) LoggerConfig {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	loggerCfg := DefaultLoggerConfig()
	loggerCfg.Level = level
	loggerCfg.Format = ParseFormat(cfg.LogFormat)
	loggerCfg.EnableFile = cfg.LogFile != ""
	loggerCfg.FilePath = cfg.LogFile
	if cfg.MaxLogSizeMB > 0 {
		loggerCfg.MaxSizeMB = cfg.MaxLogSizeMB
	}
	if cfg.MaxLogBackups > 0 {
		loggerCfg.MaxBackups = cfg.MaxLogBackups
	}
	return loggerCfg
}

// createWriters creates the appropriate writers based on configuration
func createWriters(cfg LoggerConfig) ([]io.Writer, error) {
	factory := NewWriterFactory()
	var writers []io.Writer

	if cfg.EnableConsole {
		writers = append(writers, factory.CreateConsoleWriter(cfg.Format))
	}
	if cfg.EnableFile {
		if cfg.FilePath == "" {
			return nil, common.NewValidationError("file_path", cfg.FilePath, "file path required when file logging enabled")
		}
		writers = append(writers, factory.CreateFileWriter(cfg))
	}

	if len(writers) == 0 {
		return nil, common.NewError("no output writers configured")
	}
	return writers, nil
}
