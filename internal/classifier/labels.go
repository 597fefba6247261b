// Package classifier adapts a pre-loaded sign classifier into per-frame
// letter predictions.
package classifier

// NumLabels is the size of the fixed label set.
const NumLabels = 26

// Labels is the classifier output ordering. Score i always belongs to Labels[i].
var Labels = [NumLabels]string{
	"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M",
	"N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z",
}

// Scores holds one raw score per label, aligned to Labels. Scores are
// non-negative but need not sum to one.
type Scores [NumLabels]float64

// Prediction is the raw per-frame classifier output.
type Prediction struct {
	Label      string  `json:"label"`
	Index      int     `json:"index"`
	Confidence float64 `json:"confidence"`
	Scores     Scores  `json:"-"`
}

// ArgMax returns the index of the highest score. Ties resolve to the lowest index.
func (s *Scores) ArgMax() int {
	best := 0
	for i := 1; i < NumLabels; i++ {
		if s[i] > s[best] {
			best = i
		}
	}
	return best
}

// LabelIndex returns the position of label in Labels, or -1.
func LabelIndex(label string) int {
	for i, l := range Labels {
		if l == label {
			return i
		}
	}
	return -1
}
