package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"inkpost/internal/ports"
)

// pumpAudio copies microphone PCM into the recognition stream until either side
// fails. Microphone failures are handed to report unless the handles are being
// released. A failed send means the engine ended, which the reader delivers as
// EventEnd, so it only stops the pump.
func pumpAudio(h *Handles, chunkSize int, report func(error)) {
	defer close(h.pumpDone)

	if chunkSize < 256 {
		chunkSize = 4096
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := h.audio.Read(buf)
		if n > 0 {
			if err := h.stream.SendAudio(buf[:n]); err != nil {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !h.releasing() {
				report(fmt.Errorf("audio capture error: %w", err))
			}
			return
		}
	}
}

// waitForStream waits for the engine to confirm it has ended, closing the
// stream forcibly once timeout elapses.
func waitForStream(stream ports.RecognitionStream, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		done <- stream.Wait()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		_ = stream.Close()
		return <-done
	}
}
