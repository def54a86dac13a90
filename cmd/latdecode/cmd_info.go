package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info [graph]",
	Short: "Print decoding-graph statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	graph, err := loadGraph(args[0])
	if err != nil {
		return err
	}
	numArcs := 0
	numEps := 0
	numFinal := 0
	for s := int32(0); s < int32(graph.NumStates()); s++ {
		numArcs += len(graph.Arcs(s))
		numEps += graph.NumInputEpsilons(s)
		if !graph.Final(s).IsZero() {
			numFinal++
		}
	}
	fmt.Printf("type\t%s\n", graph.Type())
	fmt.Printf("start\t%d\n", graph.Start())
	fmt.Printf("states\t%d\n", graph.NumStates())
	fmt.Printf("arcs\t%d\n", numArcs)
	fmt.Printf("input epsilons\t%d\n", numEps)
	fmt.Printf("final states\t%d\n", numFinal)
	return nil
}
