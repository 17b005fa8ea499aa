package repair

import (
	"fmt"

	"github.com/ligfx/garmin-fit-fixer/internal/common"
	"github.com/ligfx/garmin-fit-fixer/internal/fit"
)

const (
	DefaultLookahead          = 16
	DefaultMinSkip            = 1
	DefaultMaxSkip            = 64 * 1024
	DefaultRewindStep         = 1
	DefaultMaxRewind          = 16
	DefaultParallelism        = 1
	DefaultCheckpointInterval = 256
)

// Options bound and tune the resynchronization search.
type Options struct {
	// Lookahead is how many consecutive messages a skip trial must decode
	// cleanly. Reaching the end of the stream first also counts as clean.
	Lookahead int
	// MinSkip and MaxSkip bound the skip length K tried at each anchor.
	MinSkip int
	MaxSkip int
	// RewindStep is how many accepted message boundaries an anchor moves
	// back after its skip range is exhausted.
	RewindStep int
	// MaxRewind caps the number of rewinds per failure. Zero means the
	// anchor may move all the way back to the start of the current span.
	MaxRewind int
	// Parallelism is the number of skip trials evaluated concurrently.
	Parallelism int
	// CheckpointInterval is how many accepted messages separate decoder
	// snapshots used to rebuild state at a rewound anchor.
	CheckpointInterval int
	// AllowTailDrop keeps everything accepted before an unrecoverable
	// failure and discards the rest of the stream instead of failing.
	AllowTailDrop bool

	Rules   fit.Rules
	OnEvent func(Event)
	Metrics *common.Metrics
}

func DefaultOptions() Options {
	return Options{
		Lookahead:          DefaultLookahead,
		MinSkip:            DefaultMinSkip,
		MaxSkip:            DefaultMaxSkip,
		RewindStep:         DefaultRewindStep,
		MaxRewind:          DefaultMaxRewind,
		Parallelism:        DefaultParallelism,
		CheckpointInterval: DefaultCheckpointInterval,
		AllowTailDrop:      true,
		Rules:              fit.DefaultRules(),
	}
}

func (o *Options) normalize() error {
	if o.Lookahead <= 0 {
		o.Lookahead = DefaultLookahead
	}
	if o.MinSkip <= 0 {
		o.MinSkip = DefaultMinSkip
	}
	if o.MaxSkip <= 0 {
		o.MaxSkip = DefaultMaxSkip
	}
	if o.MaxSkip < o.MinSkip {
		return fmt.Errorf("max skip %d is below min skip %d", o.MaxSkip, o.MinSkip)
	}
	if o.RewindStep <= 0 {
		o.RewindStep = DefaultRewindStep
	}
	if o.MaxRewind < 0 {
		return fmt.Errorf("max rewind %d is negative", o.MaxRewind)
	}
	if o.Parallelism <= 0 {
		o.Parallelism = DefaultParallelism
	}
	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}
	return nil
}
