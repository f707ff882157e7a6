package policies

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	erand "golang.org/x/exp/rand"
)

// DefaultSnapshotPattern matches the files written by SnapshotName with the default prefix.
const DefaultSnapshotPattern = "rl_model_*_steps.json"

var (
	ErrNoSnapshots = errors.New("no model snapshots found")

	stepIndexRe = regexp.MustCompile(`\d+`)
)

// SnapshotName is the file name of a model snapshot taken at step.
func SnapshotName(prefix string, step int) string {
	return fmt.Sprintf("%s_%d_steps.json", prefix, step)
}

// SnapshotPattern is the glob matching every SnapshotName for prefix.
func SnapshotPattern(prefix string) string {
	return fmt.Sprintf("%s_*_steps.json", prefix)
}

type Snapshot struct {
	Path string
	Step int
}

// Lineage is a directory of model snapshots, each carrying the step index it
// was taken at as the last number in its file name.
type Lineage struct {
	Dir     string
	Pattern string
}

func NewLineage(dir, pattern string) *Lineage {
	if pattern == "" {
		pattern = DefaultSnapshotPattern
	}
	return &Lineage{Dir: dir, Pattern: pattern}
}

// Snapshots lists the snapshots in ascending step order. Files matching the
// pattern without a step index are skipped.
func (l *Lineage) Snapshots() ([]Snapshot, error) {
	paths, err := filepath.Glob(filepath.Join(l.Dir, l.Pattern))
	if err != nil {
		return nil, errors.Wrapf(err, "glob %s", l.Pattern)
	}
	out := make([]Snapshot, 0, len(paths))
	for _, p := range paths {
		matches := stepIndexRe.FindAllString(filepath.Base(p), -1)
		if len(matches) == 0 {
			continue
		}
		step, err := strconv.Atoi(matches[len(matches)-1])
		if err != nil {
			continue
		}
		out = append(out, Snapshot{Path: p, Step: step})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Step == out[j].Step {
			return out[i].Path < out[j].Path
		}
		return out[i].Step < out[j].Step
	})
	return out, nil
}

func (l *Lineage) Len() int {
	s, err := l.Snapshots()
	if err != nil {
		return 0
	}
	return len(s)
}

// Latest returns the snapshot with the highest step index.
func (l *Lineage) Latest() (Snapshot, error) {
	s, err := l.Snapshots()
	if err != nil {
		return Snapshot{}, err
	}
	if len(s) == 0 {
		return Snapshot{}, ErrNoSnapshots
	}
	return s[len(s)-1], nil
}

// Random returns a snapshot drawn uniformly.
func (l *Lineage) Random(r *erand.Rand) (Snapshot, error) {
	s, err := l.Snapshots()
	if err != nil {
		return Snapshot{}, err
	}
	if len(s) == 0 {
		return Snapshot{}, ErrNoSnapshots
	}
	return s[r.Intn(len(s))], nil
}

// Pick samples an older snapshot with probability 0.5 and otherwise takes the latest.
func (l *Lineage) Pick(r *erand.Rand) (Snapshot, error) {
	if r.Float64() < 0.5 {
		return l.Random(r)
	}
	return l.Latest()
}
