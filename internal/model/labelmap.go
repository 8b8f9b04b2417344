package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// LabelMap binds the dense classifier labels [0, K) of one training run to
// subject identifiers.
type LabelMap struct {
	subjects []string
	labels   map[string]int
}

func NewLabelMap() *LabelMap {
	return &LabelMap{labels: map[string]int{}}
}

// Assign returns the label of subject, allocating the next unused one the
// first time subject is seen.
func (m *LabelMap) Assign(subject string) int {
	if l, ok := m.labels[subject]; ok {
		return l
	}
	l := len(m.subjects)
	m.subjects = append(m.subjects, subject)
	m.labels[subject] = l
	return l
}

func (m *LabelMap) Subject(label int) (string, bool) {
	if label < 0 || label >= len(m.subjects) {
		return "", false
	}
	return m.subjects[label], true
}

func (m *LabelMap) Label(subject string) (int, bool) {
	l, ok := m.labels[subject]
	return l, ok
}

func (m *LabelMap) Len() int { return len(m.subjects) }

// MarshalJSON writes {"0": "S001", "1": "S002"}.
func (m *LabelMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(m.subjects))
	for l, s := range m.subjects {
		out[strconv.Itoa(l)] = s
	}
	return json.Marshal(out)
}

func (m *LabelMap) UnmarshalJSON(data []byte) error {
	var in map[string]string
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	labels := make([]int, 0, len(in))
	for k := range in {
		l, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("label map: non-integer label %q", k)
		}
		labels = append(labels, l)
	}
	sort.Ints(labels)

	next := NewLabelMap()
	for i, l := range labels {
		if l != i {
			return fmt.Errorf("label map: labels are not dense, missing %d", i)
		}
		s := in[strconv.Itoa(l)]
		if _, dup := next.labels[s]; dup {
			return fmt.Errorf("label map: subject %q has more than one label", s)
		}
		next.Assign(s)
	}
	*m = *next
	return nil
}
