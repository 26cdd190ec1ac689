package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
)

const fileName = "inkpost.log"

// Logger is the process logger and the file it writes to.
type Logger struct {
	zerolog.Logger
	file *os.File
	path string
}

// ResolveDir picks the log directory: an explicit dir, then INKPOST_LOG_DIR,
// then the OS default.
func ResolveDir(dir string) (string, error) {
	for _, candidate := range []string{dir, os.Getenv("INKPOST_LOG_DIR")} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if filepath.IsAbs(candidate) {
			return candidate, nil
		}
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(wd, candidate), nil
	}
	return defaultDir()
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "inkpost"), nil
	case "windows":
		if appData := os.Getenv("LOCALAPPDATA"); appData != "" {
			return filepath.Join(appData, "inkpost", "logs"), nil
		}
	}
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	return filepath.Join(xdgConfig, "inkpost", "logs"), nil
}

// New opens <dir>/inkpost.log and returns a logger writing there and to
// console. A nil console disables the second writer.
func New(dir, level string, console io.Writer) (*Logger, error) {
	resolved, err := ResolveDir(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(resolved, fileName)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        file,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}}
	if console != nil {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05", NoColor: true})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Int("pid", os.Getpid()).
		Logger()

	return &Logger{Logger: logger, file: file, path: path}, nil
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

func (l *Logger) Path() string {
	return l.path
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
