package lat

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteCompactText writes a compact lattice in text form: arc lines are
// "src dst label graph,acoustic,tid1_tid2", final lines
// "state graph,acoustic,alignment" with the weight omitted when it is
// the semiring one.
func WriteCompactText(w io.Writer, l *CompactLattice) error {
	bw := bufio.NewWriter(w)
	for s := int32(0); s < int32(l.NumStates()); s++ {
		for _, a := range l.Arcs(s) {
			if _, err := fmt.Fprintf(bw, "%d\t%d\t%d\t%s\n",
				s, a.NextState, a.Label, formatCompactWeight(a.Weight)); err != nil {
				return err
			}
		}
		if f := l.Final(s); !f.IsZero() {
			if f.Weight == WeightOne() && len(f.Alignment) == 0 {
				if _, err := fmt.Fprintf(bw, "%d\n", s); err != nil {
					return err
				}
			} else if _, err := fmt.Fprintf(bw, "%d\t%s\n", s, formatCompactWeight(f)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func formatCompactWeight(w CompactWeight) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatFloat(w.Weight.Graph, 'g', -1, 64))
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatFloat(w.Weight.Acoustic, 'g', -1, 64))
	sb.WriteByte(',')
	for i, tid := range w.Alignment {
		if i > 0 {
			sb.WriteByte('_')
		}
		sb.WriteString(strconv.FormatInt(int64(tid), 10))
	}
	return sb.String()
}
