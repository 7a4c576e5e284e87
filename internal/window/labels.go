package window

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// ErrUnknownLabel is returned by BuildWindows under PolicyReject when a sample carries a
// label that is not present in the label table.
var ErrUnknownLabel = errors.New("unknown label")

// LabelTable maps activity labels to the integer class ids consumed by the trainer. The
// version identifies the mapping in tensor files so that consumers can detect changes.
type LabelTable struct {
	version string
	ids     map[string]int
}

// NewLabelTable builds a label table. Ids must be unique.
func NewLabelTable(version string, ids map[string]int) (*LabelTable, error) {
	seen := make(map[int]string, len(ids))
	for label, id := range ids {
		if other, ok := seen[id]; ok {
			return nil, fmt.Errorf("labels %q and %q share id %d", other, label, id)
		}
		seen[id] = label
	}

	return &LabelTable{version: version, ids: maps.Clone(ids)}, nil
}

// DefaultLabelTable returns the hand-assigned six-class table.
func DefaultLabelTable() *LabelTable {
	return &LabelTable{
		version: "v1",
		ids: map[string]int{
			"empty":    0,
			"present":  1,
			"moving":   2,
			"walking":  3,
			"sitting":  4,
			"standing": 5,
		},
	}
}

// Version returns the table version.
func (t *LabelTable) Version() string {
	return t.version
}

// ID returns the class id of label and whether label is known.
func (t *LabelTable) ID(label string) (int, bool) {
	id, ok := t.ids[label]
	return id, ok
}

// Labels returns a copy of the label to id mapping.
func (t *LabelTable) Labels() map[string]int {
	return maps.Clone(t.ids)
}

// Names returns the known labels ordered by id.
func (t *LabelTable) Names() []string {
	names := slices.Collect(maps.Keys(t.ids))
	slices.SortFunc(names, func(a, b string) int {
		return t.ids[a] - t.ids[b]
	})
	return names
}

// UnknownLabelPolicy decides what BuildWindows does with a label missing from the table.
type UnknownLabelPolicy int

const (
	// PolicyAlias maps unknown labels to class id 0, logging a warning per label.
	PolicyAlias UnknownLabelPolicy = iota

	// PolicySkip drops the samples of unknown labels, counting them in Diagnostics.
	PolicySkip

	// PolicyReject fails the whole build with ErrUnknownLabel.
	PolicyReject
)

// AliasID is the class id unknown labels receive under PolicyAlias.
const AliasID = 0

var policyNames = map[UnknownLabelPolicy]string{
	PolicyAlias:  "alias",
	PolicySkip:   "skip",
	PolicyReject: "reject",
}

func (p UnknownLabelPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("UnknownLabelPolicy(%d)", int(p))
}

// ParseUnknownLabelPolicy parses a policy name as accepted on the command line.
func ParseUnknownLabelPolicy(s string) (UnknownLabelPolicy, error) {
	for p, name := range policyNames {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown label policy %q: expected alias, skip or reject", s)
}
