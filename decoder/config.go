package decoder

import (
	"fmt"
	"math"

	"github.com/ieee0824/lattice-go/lat"
)

// Config holds the beam-search and lattice-generation parameters.
type Config struct {
	Beam             float64 // main pruning beam for emitting expansion
	LatticeBeam      float64 // tighter beam for lattice pruning and chunk determinization
	MaxActive        int     // upper bound on tokens per frame (adaptive beam engages above)
	MinActive        int     // lower bound on tokens per frame (beam relaxes below)
	PruneInterval    int     // frames between periodic pruning / chunk emission
	PruneScale       float64 // multiplier on LatticeBeam for periodic prunes
	BeamDelta        float64 // slack added to the cutoff when the adaptive beam engages
	HashRatio        float64 // token-store resize factor
	DeterminizeDelay int     // frames to hold back before determinizing a chunk
	Redeterminize    bool    // run a full pruned determinization on finalize
	MaxWordID        int32   // largest legitimate word label; above is reserved for boundary labels
	DetOpts          lat.DetOptions
}

// DefaultConfig returns reasonable default parameters.
func DefaultConfig() Config {
	return Config{
		Beam:             13.0,
		LatticeBeam:      6.0,
		MaxActive:        math.MaxInt32,
		MinActive:        200,
		PruneInterval:    25,
		PruneScale:       0.1,
		BeamDelta:        0.5,
		HashRatio:        1.5,
		DeterminizeDelay: 25,
		Redeterminize:    false,
		MaxWordID:        10_000_000,
		DetOpts:          lat.DefaultDetOptions(),
	}
}

// Check validates the configuration.
func (c *Config) Check() error {
	switch {
	case c.Beam <= 0:
		return fmt.Errorf("decoder config: beam must be > 0, got %g", c.Beam)
	case c.LatticeBeam <= 0:
		return fmt.Errorf("decoder config: lattice beam must be > 0, got %g", c.LatticeBeam)
	case c.MaxActive <= 1:
		return fmt.Errorf("decoder config: max active must be > 1, got %d", c.MaxActive)
	case c.MinActive < 0 || c.MinActive > c.MaxActive:
		return fmt.Errorf("decoder config: min active must be in [0, max active], got %d", c.MinActive)
	case c.PruneInterval <= 0:
		return fmt.Errorf("decoder config: prune interval must be > 0, got %d", c.PruneInterval)
	case c.PruneScale <= 0 || c.PruneScale > 1:
		return fmt.Errorf("decoder config: prune scale must be in (0, 1], got %g", c.PruneScale)
	case c.BeamDelta <= 0:
		return fmt.Errorf("decoder config: beam delta must be > 0, got %g", c.BeamDelta)
	case c.HashRatio < 1:
		return fmt.Errorf("decoder config: hash ratio must be >= 1, got %g", c.HashRatio)
	case c.DeterminizeDelay < 0:
		return fmt.Errorf("decoder config: determinize delay must be >= 0, got %d", c.DeterminizeDelay)
	case c.MaxWordID <= 0:
		return fmt.Errorf("decoder config: max word id must be > 0, got %d", c.MaxWordID)
	}
	return nil
}
