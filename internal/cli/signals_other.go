//go:build !unix

package cli

import "github.com/roach88/connect/internal/connect"

// newSignalSource returns nil: suspend and resume signals are unix-only.
func newSignalSource() connect.SignalSource {
	return nil
}
