package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ieee0824/lattice-go/stream"
)

var (
	serveAddr     string
	serveInterval time.Duration

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve streaming decoding sessions over websockets",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&graphPath, "graph", "", "decoding graph in AT&T text format (required)")
	serveCmd.Flags().StringVar(&symbolsPath, "symbols", "", "word symbol table (word id per line)")
	serveCmd.Flags().StringVar(&configPath, "config", "", "decoder options YAML file")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8090", "listen address")
	serveCmd.Flags().DurationVar(&serveInterval, "partial-interval", 300*time.Millisecond, "partial result emit interval")
	_ = serveCmd.MarkFlagRequired("graph")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	graph, err := loadGraph(graphPath)
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

	srv := stream.NewServer(graph, stream.Config{
		DecoderConfig:   cfg,
		Symbols:         syms,
		PartialInterval: serveInterval,
	})
	mux := http.NewServeMux()
	mux.Handle("/decode", srv)
	slog.Info("listening", "addr", serveAddr)
	if err := http.ListenAndServe(serveAddr, mux); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
