// Package voice defines the optional text-to-speech collaborator interface.
package voice

import "context"

// Synthesizer turns answer text into audio. Absence of a synthesizer, or a
// synthesis failure, must never fail the answer pipeline.
type Synthesizer interface {
	// Synthesize returns encoded audio for the text.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Close releases synthesizer resources.
	Close() error
}
