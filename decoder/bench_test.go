package decoder

import (
	"testing"
)

func benchDecode(b *testing.B, numStates, frames int) {
	graph := cycleGraph(numStates)
	loglikes := cycleLoglikes(frames, numStates)
	cfg := DefaultConfig()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d, err := New(graph, cfg)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := d.Decode(NewMatrixDecodable(loglikes)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeSmall(b *testing.B)  { benchDecode(b, 5, 50) }
func BenchmarkDecodeMedium(b *testing.B) { benchDecode(b, 20, 200) }

func BenchmarkGetLattice(b *testing.B) {
	graph := cycleGraph(10)
	loglikes := cycleLoglikes(100, 10)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d, err := New(graph, DefaultConfig())
		if err != nil {
			b.Fatal(err)
		}
		d.InitDecoding()
		if err := d.AdvanceDecoding(NewMatrixDecodable(loglikes), -1); err != nil {
			b.Fatal(err)
		}
		d.FinalizeDecoding()
		if _, err := d.GetLattice(true, false, d.NumFramesDecoded()); err != nil {
			b.Fatal(err)
		}
	}
}
