package engine

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// StepTimeouts holds the base duration of each consensus step plus the
// per-round backoff deltas. Base durations belong to the state machine; the
// deltas are scheduling policy applied by the StepClock when it reschedules.
type StepTimeouts struct {
	Propose   time.Duration
	Prevote   time.Duration
	Precommit time.Duration
	Commit    time.Duration

	ProposeDelta   time.Duration
	PrevoteDelta   time.Duration
	PrecommitDelta time.Duration
}

// DefaultStepTimeouts returns the default step timeouts
func DefaultStepTimeouts() StepTimeouts {
	return StepTimeouts{
		Propose:        3000 * time.Millisecond,
		Prevote:        1000 * time.Millisecond,
		Precommit:      1000 * time.Millisecond,
		Commit:         1000 * time.Millisecond,
		ProposeDelta:   500 * time.Millisecond,
		PrevoteDelta:   500 * time.Millisecond,
		PrecommitDelta: 500 * time.Millisecond,
	}
}

// Base returns the base duration of a step
func (t StepTimeouts) Base(step Step) time.Duration {
	switch step {
	case StepPropose:
		return t.Propose
	case StepPrevote:
		return t.Prevote
	case StepPrecommit:
		return t.Precommit
	case StepCommit:
		return t.Commit
	default:
		return time.Second
	}
}

// Delta returns the per-round backoff increment of a step. The Commit step
// has no backoff: its expiry always rolls into a fresh Propose.
func (t StepTimeouts) Delta(step Step) time.Duration {
	switch step {
	case StepPropose:
		return t.ProposeDelta
	case StepPrevote:
		return t.PrevoteDelta
	case StepPrecommit:
		return t.PrecommitDelta
	default:
		return 0
	}
}

// ForRound returns the scheduling duration of a step at a given round:
// base plus round times delta.
func (t StepTimeouts) ForRound(step Step, round Round) time.Duration {
	return t.Base(step) + time.Duration(round)*t.Delta(step)
}

// Config holds configuration for the consensus engine
type Config struct {
	// ChainID identifies the blockchain
	ChainID string

	// Timeouts
	Timeouts StepTimeouts

	// WAL configuration; an empty path disables the WAL
	WALPath string
	WALSync bool // Force sync on every write
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ChainID:  "parity-chain",
		Timeouts: DefaultStepTimeouts(),
		WALPath:  "data/cs.wal",
		WALSync:  true,
	}
}

// ValidateBasic performs basic validation of the config
func (cfg *Config) ValidateBasic() error {
	if cfg.ChainID == "" {
		return ErrInvalidConfig
	}
	for _, step := range []Step{StepPropose, StepPrevote, StepPrecommit, StepCommit} {
		if cfg.Timeouts.Base(step) <= 0 {
			return fmt.Errorf("%w: %s timeout must be positive", ErrInvalidConfig, step)
		}
		if cfg.Timeouts.Delta(step) < 0 {
			return fmt.Errorf("%w: %s timeout delta must not be negative", ErrInvalidConfig, step)
		}
	}
	return nil
}

// configFile is the on-disk TOML representation. Durations are plain
// millisecond counts.
type configFile struct {
	ChainID  string          `toml:"chain_id"`
	WALPath  string          `toml:"wal_path"`
	WALSync  bool            `toml:"wal_sync"`
	Timeouts timeoutsSection `toml:"timeouts"`
}

type timeoutsSection struct {
	ProposeMs        int64 `toml:"propose_ms"`
	PrevoteMs        int64 `toml:"prevote_ms"`
	PrecommitMs      int64 `toml:"precommit_ms"`
	CommitMs         int64 `toml:"commit_ms"`
	ProposeDeltaMs   int64 `toml:"propose_delta_ms"`
	PrevoteDeltaMs   int64 `toml:"prevote_delta_ms"`
	PrecommitDeltaMs int64 `toml:"precommit_delta_ms"`
}

// LoadConfig reads a TOML config file, filling unset fields from
// DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	var file configFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if file.ChainID != "" {
		cfg.ChainID = file.ChainID
	}
	if file.WALPath != "" {
		cfg.WALPath = file.WALPath
	}
	cfg.WALSync = file.WALSync

	setMs := func(dst *time.Duration, ms int64) {
		if ms > 0 {
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	setMs(&cfg.Timeouts.Propose, file.Timeouts.ProposeMs)
	setMs(&cfg.Timeouts.Prevote, file.Timeouts.PrevoteMs)
	setMs(&cfg.Timeouts.Precommit, file.Timeouts.PrecommitMs)
	setMs(&cfg.Timeouts.Commit, file.Timeouts.CommitMs)
	setMs(&cfg.Timeouts.ProposeDelta, file.Timeouts.ProposeDeltaMs)
	setMs(&cfg.Timeouts.PrevoteDelta, file.Timeouts.PrevoteDeltaMs)
	setMs(&cfg.Timeouts.PrecommitDelta, file.Timeouts.PrecommitDeltaMs)

	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	return cfg, nil
}
