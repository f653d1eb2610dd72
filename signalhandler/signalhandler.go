package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"photosorter/logging"
)

// SetupHandler cancels the run on the first SIGINT or SIGTERM so that
// in-flight moves can finish; a second signal exits immediately. The
// returned function stops listening.
func SetupHandler(cancel context.CancelFunc) (stop func()) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigChan:
			logging.LogWarning("Received %v, finishing files in progress (signal again to abort)", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case <-sigChan:
			logging.LogError("Aborting")
			logging.CloseLogger()
			os.Exit(130)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}

// GetOptimalProcs returns the optimal number of worker goroutines for the system
func GetOptimalProcs() int {
	numCPU := runtime.NumCPU()

	// image decoding goes through cgo; leave headroom
	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}

	return maxProcs
}
