package policies

import (
	"bufio"
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	erand "golang.org/x/exp/rand"

	"github.com/zeu5/lux-rl-env/core"
)

// Model is a tabular action-value model keyed by state key and action code.
type Model struct {
	table map[string]map[core.Action]float64
}

func NewModel() *Model {
	return &Model{
		table: make(map[string]map[core.Action]float64),
	}
}

func (m *Model) Get(state string, action core.Action, def float64) float64 {
	if _, ok := m.table[state]; !ok {
		m.table[state] = make(map[core.Action]float64)
	}
	if _, ok := m.table[state][action]; !ok {
		m.table[state][action] = def
	}
	return m.table[state][action]
}

func (m *Model) Set(state string, action core.Action, val float64) {
	if _, ok := m.table[state]; !ok {
		m.table[state] = make(map[core.Action]float64)
	}
	m.table[state][action] = val
}

// MaxAmong returns the best of the given actions, breaking ties at random.
func (m *Model) MaxAmong(state string, actions []core.Action, def float64, r *erand.Rand) (core.Action, float64) {
	maxActions := make([]core.Action, 0)
	maxVal := math.Inf(-1)
	for _, a := range actions {
		val := m.Get(state, a, def)
		if val > maxVal {
			maxActions = maxActions[:0]
			maxVal = val
		}
		if val == maxVal {
			maxActions = append(maxActions, a)
		}
	}
	if len(maxActions) == 0 {
		return 0, def
	}
	return maxActions[r.Intn(len(maxActions))], maxVal
}

func (m *Model) Size() int {
	return len(m.table)
}

// Clone returns a deep copy that shares nothing with m.
func (m *Model) Clone() *Model {
	out := NewModel()
	for state, entries := range m.table {
		copied := make(map[core.Action]float64, len(entries))
		for a, v := range entries {
			copied[a] = v
		}
		out.table[state] = copied
	}
	return out
}

type modelLine struct {
	State   string                  `json:"state"`
	Entries map[core.Action]float64 `json:"entries"`
}

// Save writes the model as json lines, one state per line. The file is
// written next to path and renamed into place.
func (m *Model) Save(path string) error {
	bs := new(bytes.Buffer)
	enc := json.NewEncoder(bs)
	for state, entries := range m.table {
		if err := enc.Encode(modelLine{State: state, Entries: entries}); err != nil {
			return errors.Wrapf(err, "encode state %q", state)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create model dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, bs.Bytes(), 0644); err != nil {
		return errors.Wrap(err, "write model")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename model")
}

func LoadModel(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading model file")
	}
	defer file.Close()

	m := NewModel()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var line modelLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			return nil, errors.Wrapf(err, "error reading model contents of %s", path)
		}
		if line.Entries == nil {
			line.Entries = make(map[core.Action]float64)
		}
		m.table[line.State] = line.Entries
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan model file")
	}
	return m, nil
}
