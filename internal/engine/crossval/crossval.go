// Package crossval holds the fold assignment, threshold search and metric
// arithmetic of k-fold cross-validation. Training the held-out models is the
// engine's job; this package only turns scores into reports.
package crossval

import (
	"fmt"
	"sort"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/hejijunhao/canopy/internal/model"
)

// Info selects the held-out fold. FoldCount 0 disables cross-validation.
type Info struct {
	FoldIndex int
	FoldCount int
}

// Enabled reports whether a fold split is configured.
func (i Info) Enabled() bool { return i.FoldCount > 0 }

// Validate checks that FoldIndex lies in [0, FoldCount).
func (i Info) Validate() error {
	if i.FoldCount < 0 {
		return fmt.Errorf("fold count %d is negative", i.FoldCount)
	}
	if i.FoldCount == 0 {
		return nil
	}
	if i.FoldIndex < 0 || i.FoldIndex >= i.FoldCount {
		return fmt.Errorf("fold index %d outside [0, %d)", i.FoldIndex, i.FoldCount)
	}
	return nil
}

// HeldOut reports whether exampleID falls in the held-out fold.
func (i Info) HeldOut(exampleID string) bool {
	return i.Enabled() && Fold(exampleID, i.FoldCount) == i.FoldIndex
}

// Fold maps an example id to its fold in [0, foldCount). The mapping depends
// only on the id and foldCount.
func Fold(exampleID string, foldCount int) int {
	if foldCount <= 0 {
		return 0
	}
	return int(xxh3.HashString(exampleID) % uint64(foldCount))
}

// Scored is one held-out example with the temporary model's score.
type Scored struct {
	ID       string
	Score    float64
	Positive bool
}

// Metrics computes precision, recall and F1 from raw counts. A ratio with a
// zero denominator is 0.
func Metrics(tp, fp, fn int) (precision, recall, f1 float64) {
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// BestThreshold returns the candidate threshold maximising F1 on scored.
// Candidates are the distinct held-out scores, so a score equal to the
// threshold counts as exceeding it: an example is predicted positive iff
// score >= threshold. AddFold and the query cutoff use the same convention.
// On equal F1 the higher threshold wins. Without positives, fallback is
// returned.
func BestThreshold(scored []Scored, fallback float64) float64 {
	var positives int
	for _, s := range scored {
		if s.Positive {
			positives++
		}
	}
	if positives == 0 {
		return fallback
	}

	sorted := make([]Scored, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	best, bestF1 := fallback, -1.0
	var tp, fp int
	for i, s := range sorted {
		if s.Positive {
			tp++
		} else {
			fp++
		}
		// Only the last of a run of equal scores is a valid cut.
		if i+1 < len(sorted) && sorted[i+1].Score == s.Score {
			continue
		}
		_, _, f1 := Metrics(tp, fp, positives-tp)
		if f1 > bestF1 {
			best, bestF1 = s.Score, f1
		}
	}
	return best
}

// Tally accumulates held-out outcomes for one concept over one or more folds.
type Tally struct {
	conceptID  string
	tp, fp, fn int
	support    int
	fpIDs      []string
	fnIDs      []string
	thresholds []float64
	folds      int
}

// NewTally starts an empty tally for conceptID.
func NewTally(conceptID string) *Tally {
	return &Tally{conceptID: conceptID}
}

// AddFold counts scored at threshold; score >= threshold is a positive
// prediction.
func (t *Tally) AddFold(scored []Scored, threshold float64) {
	t.folds++
	t.thresholds = append(t.thresholds, threshold)
	for _, s := range scored {
		predicted := s.Score >= threshold
		if s.Positive {
			t.support++
		}
		switch {
		case predicted && s.Positive:
			t.tp++
		case predicted:
			t.fp++
			t.fpIDs = append(t.fpIDs, s.ID)
		case s.Positive:
			t.fn++
			t.fnIDs = append(t.fnIDs, s.ID)
		}
	}
}

// AddUnscored counts a fold for which no model could be trained: every
// held-out positive is a false negative.
func (t *Tally) AddUnscored(positiveIDs []string) {
	t.folds++
	t.support += len(positiveIDs)
	t.fn += len(positiveIDs)
	t.fnIDs = append(t.fnIDs, positiveIDs...)
}

// Report builds the concept's report. The threshold is the mean of the
// per-fold thresholds, or fallback when no fold produced one.
func (t *Tally) Report(fallback float64, now time.Time) model.ClassificationReport {
	threshold := fallback
	if len(t.thresholds) > 0 {
		var sum float64
		for _, th := range t.thresholds {
			sum += th
		}
		threshold = sum / float64(len(t.thresholds))
	}

	precision, recall, f1 := Metrics(t.tp, t.fp, t.fn)
	return model.ClassificationReport{
		ConceptID:        t.conceptID,
		Precision:        precision,
		Recall:           recall,
		F1:               f1,
		Threshold:        threshold,
		TruePositives:    t.tp,
		FalsePositives:   t.fp,
		FalseNegatives:   t.fn,
		Support:          t.support,
		FalsePositiveIDs: sortedIDs(t.fpIDs),
		FalseNegativeIDs: sortedIDs(t.fnIDs),
		Folds:            t.folds,
		UpdatedAt:        now,
	}
}

func sortedIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.Strings(out)
	return out
}
