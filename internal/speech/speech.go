// Package speech defines the audio/speech collaborator ports the timeline
// core announces through. The default implementations write through the
// logger; wiring a real TTS engine or soundpack is a matter of providing
// different implementations.
package speech

import "go.uber.org/zap"

// Speaker voices text to the user.
type Speaker interface {
	Speak(text string)
	Silence()
}

// Player plays a named sound cue ("new_status", "mentions", "message",
// "notification", "error", ...).
type Player interface {
	Play(cue string)
}

// Reporter surfaces user-facing failures: speak a message, log the error,
// optionally play the error cue. Errors never propagate past it.
type Reporter interface {
	HandleError(msg string, err error)
}

type logSpeaker struct {
	logger *zap.Logger
}

// NewLogSpeaker returns a Speaker that logs instead of speaking.
func NewLogSpeaker(logger *zap.Logger) Speaker {
	return &logSpeaker{logger: logger}
}

func (s *logSpeaker) Speak(text string) {
	s.logger.Info("speak", zap.String("text", text))
}

func (s *logSpeaker) Silence() {}

type logPlayer struct {
	logger *zap.Logger
}

// NewLogPlayer returns a Player that logs instead of playing audio.
func NewLogPlayer(logger *zap.Logger) Player {
	return &logPlayer{logger: logger}
}

func (p *logPlayer) Play(cue string) {
	p.logger.Debug("play", zap.String("cue", cue))
}

type reporter struct {
	speaker Speaker
	player  Player
	logger  *zap.Logger
	quiet   bool
}

// NewReporter builds the shared error reporter. quiet suppresses the error
// sound cue.
func NewReporter(speaker Speaker, player Player, logger *zap.Logger, quiet bool) Reporter {
	return &reporter{speaker: speaker, player: player, logger: logger, quiet: quiet}
}

func (r *reporter) HandleError(msg string, err error) {
	r.logger.Error(msg, zap.Error(err))
	r.speaker.Speak(msg)
	if !r.quiet {
		r.player.Play("error")
	}
}
