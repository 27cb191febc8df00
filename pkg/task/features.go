package task

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
)

// Feature is a perceptual tag carried by a stimulus image.
type Feature string

const (
	Colorful    Feature = "Colorful"
	NotColorful Feature = "notColorful"
	Multiple    Feature = "Multiple"
	Single      Feature = "Single"
	New         Feature = "New"
	Old         Feature = "Old"
)

// FeatureEntry tags one stimulus file. File is "<Category>/<PairN>/<name>".
type FeatureEntry struct {
	File     string    `yaml:"file"`
	Features []Feature `yaml:"features"`
}

// FeatureTable resolves stimulus paths to their feature tags.
type FeatureTable struct {
	entries  []FeatureEntry
	bySuffix map[string]int
	byBase   map[string]int
}

// NewFeatureTable indexes entries by their category/pair/file suffix and by
// base name. Keys are case-insensitive.
func NewFeatureTable(entries []FeatureEntry) *FeatureTable {
	t := &FeatureTable{
		entries:  entries,
		bySuffix: make(map[string]int, len(entries)),
		byBase:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		key := strings.ToLower(filepath.ToSlash(e.File))
		t.bySuffix[lastComponents(key, 3)] = i
		t.byBase[path.Base(key)] = i
	}
	return t
}

func lastComponents(p string, n int) string {
	parts := strings.Split(p, "/")
	if len(parts) > n {
		parts = parts[len(parts)-n:]
	}
	return strings.Join(parts, "/")
}

// Len returns the number of tagged stimuli.
func (t *FeatureTable) Len() int {
	return len(t.entries)
}

// Lookup returns the features of the stimulus at p. The category/pair/file
// suffix is tried first, then the bare file name.
func (t *FeatureTable) Lookup(p string) ([]Feature, bool) {
	key := strings.ToLower(filepath.ToSlash(p))
	if i, ok := t.bySuffix[lastComponents(key, 3)]; ok {
		return t.entries[i].Features, true
	}
	if i, ok := t.byBase[path.Base(key)]; ok {
		return t.entries[i].Features, true
	}
	return nil, false
}

// LoadFeatureTable reads a YAML list of FeatureEntry values.
func LoadFeatureTable(file string) (*FeatureTable, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, taskerrors.IOWrap(err, taskerrors.ErrFeatureTableInvalid, "cannot read feature table").
			WithContext(taskerrors.ContextPath, file)
	}
	var entries []FeatureEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, taskerrors.IOWrap(err, taskerrors.ErrFeatureTableInvalid, "cannot parse feature table").
			WithContext(taskerrors.ContextPath, file)
	}
	for _, e := range entries {
		if e.File == "" || len(e.Features) == 0 {
			return nil, taskerrors.Stimulus(taskerrors.ErrFeatureTableInvalid, "feature entry missing file or tags").
				WithContext(taskerrors.ContextPath, file)
		}
	}
	return NewFeatureTable(entries), nil
}

// DefaultFeatureTable returns the tags of the bundled stimulus set.
func DefaultFeatureTable() *FeatureTable {
	return NewFeatureTable(defaultFeatures)
}

var defaultFeatures = []FeatureEntry{
	{"Animals/Pair1/201.jpg", []Feature{NotColorful, Multiple}},
	{"Animals/Pair1/202.jpg", []Feature{Colorful, Single}},
	{"Animals/Pair2/203.jpg", []Feature{Colorful, Multiple}},
	{"Animals/Pair2/204.jpg", []Feature{NotColorful, Single}},
	{"Animals/Pair3/205.jpg", []Feature{Colorful, Multiple}},
	{"Animals/Pair3/206.jpg", []Feature{NotColorful, Single}},
	{"Animals/Pair4/207.jpg", []Feature{NotColorful, Multiple}},
	{"Animals/Pair4/208.jpg", []Feature{Colorful, Single}},
	{"Animals/Pair5/209.jpg", []Feature{Colorful, Multiple}},
	{"Animals/Pair5/210.jpg", []Feature{NotColorful, Single}},
	{"Animals/Pair6/211.jpg", []Feature{NotColorful, Multiple}},
	{"Animals/Pair6/212.jpg", []Feature{Colorful, Single}},
	{"Cars/Pair1/301.jpg", []Feature{Colorful, New}},
	{"Cars/Pair1/302.jpg", []Feature{NotColorful, Old}},
	{"Cars/Pair2/303.jpg", []Feature{NotColorful, Old}},
	{"Cars/Pair2/304.jpg", []Feature{Colorful, New}},
	{"Cars/Pair3/305.jpg", []Feature{NotColorful, Old}},
	{"Cars/Pair3/306.jpg", []Feature{Colorful, New}},
	{"Cars/Pair4/307.jpg", []Feature{NotColorful, New}},
	{"Cars/Pair4/308.jpg", []Feature{Colorful, Old}},
	{"Cars/Pair5/309.jpg", []Feature{NotColorful, New}},
	{"Cars/Pair5/310.jpg", []Feature{Colorful, Old}},
	{"Cars/Pair6/311.jpg", []Feature{NotColorful, New}},
	{"Cars/Pair6/312.jpg", []Feature{Colorful, Old}},
	{"Faces/Pair1/101.jpg", []Feature{Old}},
	{"Faces/Pair1/102.jpg", []Feature{New}},
	{"Faces/Pair2/103.jpg", []Feature{New}},
	{"Faces/Pair2/104.jpg", []Feature{Old}},
	{"Faces/Pair3/105.jpg", []Feature{New}},
	{"Faces/Pair3/106.jpg", []Feature{Old}},
	{"Faces/Pair4/107.jpg", []Feature{New}},
	{"Faces/Pair4/108.jpg", []Feature{Old}},
	{"Faces/Pair5/109.jpg", []Feature{New}},
	{"Faces/Pair5/110.jpg", []Feature{Old}},
	{"Faces/Pair6/111.jpg", []Feature{Old}},
	{"Faces/Pair6/112.jpg", []Feature{New}},
	{"Fruits/Pair1/401.jpg", []Feature{Multiple}},
	{"Fruits/Pair1/402.jpg", []Feature{Single}},
	{"Fruits/Pair2/403.jpg", []Feature{Multiple}},
	{"Fruits/Pair2/404.jpg", []Feature{Single}},
	{"Fruits/Pair3/405.jpg", []Feature{Multiple}},
	{"Fruits/Pair3/406.jpg", []Feature{Single}},
	{"Fruits/Pair4/407.jpg", []Feature{Single}},
	{"Fruits/Pair4/408.jpg", []Feature{Multiple}},
	{"Fruits/Pair5/409.jpg", []Feature{Single}},
	{"Fruits/Pair5/410.jpg", []Feature{Multiple}},
	{"Fruits/Pair6/411.jpg", []Feature{Multiple}},
	{"Fruits/Pair6/412.jpg", []Feature{Single}},
}
