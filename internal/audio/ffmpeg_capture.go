package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inkpost/internal/domain"
	"inkpost/internal/ports"
)

// Options configures the ffmpeg microphone capture.
type Options struct {
	Command string
	// EchoCancelSource is the input used when echo cancellation is requested,
	// typically a PulseAudio module-echo-cancel source. Empty keeps the
	// configured device.
	EchoCancelSource string
	StartupGrace     time.Duration
}

// FFMPEGCapture streams microphone PCM audio using ffmpeg.
type FFMPEGCapture struct {
	opts Options
	log  zerolog.Logger
}

func NewFFMPEGCapture(opts Options, log zerolog.Logger) *FFMPEGCapture {
	if opts.Command == "" {
		opts.Command = "ffmpeg"
	}
	if opts.StartupGrace <= 0 {
		opts.StartupGrace = 250 * time.Millisecond
	}
	return &FFMPEGCapture{opts: opts, log: log.With().Str("component", "audio").Logger()}
}

// Available reports whether the ffmpeg binary can be found.
func (c *FFMPEGCapture) Available() bool {
	_, err := exec.LookPath(c.opts.Command)
	return err == nil
}

func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	if !c.Available() {
		return nil, fmt.Errorf("%w: %s not found", domain.ErrDeviceUnavailable, c.opts.Command)
	}

	args := buildArgs(cfg, c.opts.EchoCancelSource)
	c.log.Debug().Strs("args", args).Msg("starting ffmpeg")

	cmd := exec.CommandContext(ctx, c.opts.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(c.opts.StartupGrace):
	}

	return &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

// buildArgs maps the capture constraints onto ffmpeg input selection and an
// audio filter chain.
func buildArgs(cfg ports.AudioConfig, echoCancelSource string) []string {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.EchoCancellation && echoCancelSource != "" {
		cfg.InputDevice = echoCancelSource
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
	}
	if chain := filterChain(cfg); chain != "" {
		args = append(args, "-af", chain)
	}
	args = append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)
	return args
}

func filterChain(cfg ports.AudioConfig) string {
	var filters []string
	if cfg.NoiseSuppression {
		filters = append(filters, "highpass=f=80", "afftdn=nf=-25")
	}
	if cfg.AutoGainControl {
		filters = append(filters, "dynaudnorm=f=150:g=15")
	}
	return strings.Join(filters, ",")
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSession) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSession) Close() error {
	return s.Stop()
}

func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(1200 * time.Millisecond):
			if s.process != nil {
				_ = s.process.Kill()
			}
			err, ok := <-s.waitErr
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		}

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
