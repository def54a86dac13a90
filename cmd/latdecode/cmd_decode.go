package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	lattice "github.com/ieee0824/lattice-go"
	"github.com/ieee0824/lattice-go/decoder"
	"github.com/ieee0824/lattice-go/fst"
	"github.com/ieee0824/lattice-go/lat"
)

var (
	graphPath    string
	loglikesPath string
	symbolsPath  string
	latticePath  string
	configPath   string
	verbose      bool

	flagBeam             float64
	flagLatticeBeam      float64
	flagMaxActive        int
	flagPruneInterval    int
	flagDeterminizeDelay int
	flagRedeterminize    bool

	decodeCmd = &cobra.Command{
		Use:   "decode",
		Short: "Decode a log-likelihood matrix against a graph",
		RunE:  runDecode,
	}
)

func init() {
	decodeCmd.Flags().StringVar(&graphPath, "graph", "", "decoding graph in AT&T text format (required)")
	decodeCmd.Flags().StringVar(&loglikesPath, "loglikes", "", "log-likelihood matrix, one frame per line (required)")
	decodeCmd.Flags().StringVar(&symbolsPath, "symbols", "", "word symbol table (word id per line)")
	decodeCmd.Flags().StringVar(&latticePath, "lattice", "", "write the compact lattice here")
	decodeCmd.Flags().StringVar(&configPath, "config", "", "decoder options YAML file")
	decodeCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "per-word output on stderr")
	decodeCmd.Flags().Float64Var(&flagBeam, "beam", 13.0, "decoding beam")
	decodeCmd.Flags().Float64Var(&flagLatticeBeam, "lattice-beam", 6.0, "lattice pruning beam")
	decodeCmd.Flags().IntVar(&flagMaxActive, "max-active", 0, "max active tokens per frame (0 = unlimited)")
	decodeCmd.Flags().IntVar(&flagPruneInterval, "prune-interval", 25, "frames between pruning passes")
	decodeCmd.Flags().IntVar(&flagDeterminizeDelay, "determinize-delay", 25, "frames held back before chunk determinization")
	decodeCmd.Flags().BoolVar(&flagRedeterminize, "redeterminize", false, "redeterminize the full lattice on finalize")
	_ = decodeCmd.MarkFlagRequired("graph")
	_ = decodeCmd.MarkFlagRequired("loglikes")
	rootCmd.AddCommand(decodeCmd)
}

// yamlConfig mirrors decoder.Config for the YAML config file.
type yamlConfig struct {
	Beam             *float64 `yaml:"beam"`
	LatticeBeam      *float64 `yaml:"lattice_beam"`
	MaxActive        *int     `yaml:"max_active"`
	MinActive        *int     `yaml:"min_active"`
	PruneInterval    *int     `yaml:"prune_interval"`
	PruneScale       *float64 `yaml:"prune_scale"`
	BeamDelta        *float64 `yaml:"beam_delta"`
	DeterminizeDelay *int     `yaml:"determinize_delay"`
	Redeterminize    *bool    `yaml:"redeterminize"`
}

func buildConfig(cmd *cobra.Command) (decoder.Config, error) {
	cfg := decoder.DefaultConfig()
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		var yc yamlConfig
		if err := yaml.Unmarshal(raw, &yc); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
		if yc.Beam != nil {
			cfg.Beam = *yc.Beam
		}
		if yc.LatticeBeam != nil {
			cfg.LatticeBeam = *yc.LatticeBeam
		}
		if yc.MaxActive != nil {
			cfg.MaxActive = *yc.MaxActive
		}
		if yc.MinActive != nil {
			cfg.MinActive = *yc.MinActive
		}
		if yc.PruneInterval != nil {
			cfg.PruneInterval = *yc.PruneInterval
		}
		if yc.PruneScale != nil {
			cfg.PruneScale = *yc.PruneScale
		}
		if yc.BeamDelta != nil {
			cfg.BeamDelta = *yc.BeamDelta
		}
		if yc.DeterminizeDelay != nil {
			cfg.DeterminizeDelay = *yc.DeterminizeDelay
		}
		if yc.Redeterminize != nil {
			cfg.Redeterminize = *yc.Redeterminize
		}
	}
	// individual flags win over the config file
	if cmd.Flags().Changed("beam") {
		cfg.Beam = flagBeam
	}
	if cmd.Flags().Changed("lattice-beam") {
		cfg.LatticeBeam = flagLatticeBeam
	}
	if cmd.Flags().Changed("max-active") && flagMaxActive > 0 {
		cfg.MaxActive = flagMaxActive
	}
	if cmd.Flags().Changed("prune-interval") {
		cfg.PruneInterval = flagPruneInterval
	}
	if cmd.Flags().Changed("determinize-delay") {
		cfg.DeterminizeDelay = flagDeterminizeDelay
	}
	if cmd.Flags().Changed("redeterminize") {
		cfg.Redeterminize = flagRedeterminize
	}
	return cfg, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	graph, err := loadGraph(graphPath)
	if err != nil {
		return err
	}
	loglikes, err := loadMatrix(loglikesPath)
	if err != nil {
		return err
	}
	var syms map[int32]string
	if symbolsPath != "" {
		if syms, err = loadSymbols(symbolsPath); err != nil {
			return err
		}
	}
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	res, clat, err := lattice.Decode(graph, loglikes,
		lattice.WithConfig(cfg), lattice.WithSymbols(syms))
	if err != nil {
		return err
	}

	fmt.Println(res.Text)
	if verbose {
		fmt.Fprintf(os.Stderr, "Score: %.4f\n", res.LogScore)
		for _, w := range res.Words {
			fmt.Fprintf(os.Stderr, "  [%d-%d] %s\n", w.StartFrame, w.EndFrame, w.Text)
		}
	}

	if latticePath != "" {
		f, err := os.Create(latticePath)
		if err != nil {
			return fmt.Errorf("create lattice file: %w", err)
		}
		defer f.Close()
		if err := lat.WriteCompactText(f, clat); err != nil {
			return fmt.Errorf("write lattice: %w", err)
		}
	}
	return nil
}

func loadGraph(path string) (fst.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph: %w", err)
	}
	defer f.Close()
	vf, err := fst.ReadText(f)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	return fst.NewConstFst(vf), nil
}

// loadMatrix reads one frame per line, space-separated log-likelihoods
// indexed by transition-id minus one.
func loadMatrix(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open loglikes: %w", err)
	}
	defer f.Close()
	var rows [][]float64
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		row := make([]float64, len(fields))
		for i, fld := range fields {
			v, err := strconv.ParseFloat(fld, 64)
			if err != nil {
				return nil, fmt.Errorf("loglikes line %d: bad value %q: %w", lineNo, fld, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read loglikes: %w", err)
	}
	return rows, nil
}

// loadSymbols reads a word symbol table, "word id" per line.
func loadSymbols(path string) (map[int32]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols: %w", err)
	}
	defer f.Close()
	syms := make(map[int32]string)
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("symbols line %d: expected 2 fields, got %d", lineNo, len(fields))
		}
		id, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("symbols line %d: bad id %q: %w", lineNo, fields[1], err)
		}
		syms[int32(id)] = fields[0]
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read symbols: %w", err)
	}
	return syms, nil
}
