package common

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

var (
	globalLogger arbor.ILogger
	loggerMutex  sync.Mutex
)

func consoleWriter(textOutput bool) models.WriterConfiguration {
	return models.WriterConfiguration{
		Type:       models.LogWriterTypeConsole,
		TimeFormat: "15:04:05",
		OutputType: outputFormat(textOutput),
	}
}

func outputFormat(textOutput bool) models.OutputFormat {
	if textOutput {
		return models.OutputFormatLogfmt
	}
	return models.OutputFormatJSON
}

// GetLogger returns the logger set by InitLogger, or a console logger when
// the process failed before configuration was loaded.
func GetLogger() arbor.ILogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if globalLogger == nil {
		globalLogger = arbor.NewLogger().WithConsoleWriter(consoleWriter(true))
	}
	return globalLogger
}

// InitLogger initializes the arbor logger with configuration
func InitLogger(config *Config) arbor.ILogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	logger := arbor.NewLogger()

	logsDir, err := LogsDir()
	if err != nil {
		fmt.Printf("Warning: Failed to get executable path: %v\n", err)
		globalLogger = logger.WithConsoleWriter(consoleWriter(true))
		return globalLogger
	}
	textOutput := config.Logging.Format != "json"

	var toFile, toConsole bool
	for _, output := range config.Logging.Output {
		switch output {
		case "file":
			toFile = true
		case "stdout", "console":
			toConsole = true
		}
	}

	if toFile {
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Printf("Warning: Failed to create logs directory: %v\n", err)
		} else {
			name := config.Logging.File
			if name == "" {
				name = "dashnote.log"
			}
			logFile := filepath.Join(logsDir, name)
			logger = logger.WithFileWriter(models.WriterConfiguration{
				Type:       models.LogWriterTypeFile,
				FileName:   logFile,
				TimeFormat: "15:04:05",
				MaxSize:    100 * 1024 * 1024,
				MaxBackups: 3,
				OutputType: outputFormat(textOutput),
			})
		}
	}

	if toConsole {
		logger = logger.WithConsoleWriter(consoleWriter(textOutput))
	}

	logger = logger.WithLevelFromString(config.Logging.Level)
	globalLogger = logger

	return logger
}

// LogsDir is the logs directory next to the executable
func LogsDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(execPath), "logs"), nil
}
