// Package stimuli lists the image files available for each stimulus pair.
package stimuli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	taskerrors "github.com/renee-tung/WMInstructionTask/pkg/errors"
	"github.com/renee-tung/WMInstructionTask/pkg/task"
)

// Inventory returns the image files of one category pair. Pairs are 1-based.
type Inventory interface {
	Images(category task.Category, pair int) ([]string, error)
}

// DirInventory reads images from <Root>/<Category>/Pair<n>/.
type DirInventory struct {
	Root string

	cache map[string][]string
}

// NewDirInventory creates an inventory rooted at root.
func NewDirInventory(root string) *DirInventory {
	return &DirInventory{Root: root, cache: make(map[string][]string)}
}

// PairDir returns the folder holding the images of a pair.
func (d *DirInventory) PairDir(category task.Category, pair int) string {
	return filepath.Join(d.Root, category.String(), fmt.Sprintf("Pair%d", pair))
}

// Images lists the .jpg files of the pair (extension matched without
// regard to case), sorted by name. A missing or empty folder is an error
// naming the category and pair.
func (d *DirInventory) Images(category task.Category, pair int) ([]string, error) {
	dir := d.PairDir(category, pair)
	if files, ok := d.cache[dir]; ok {
		return files, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, taskerrors.Stimulus(taskerrors.ErrStimulusFolderMissing, "stimulus folder cannot be read").
			WithContext(taskerrors.ContextCategory, category.String()).
			WithContext(taskerrors.ContextPair, fmt.Sprintf("Pair%d", pair)).
			WithContext(taskerrors.ContextPath, dir).
			WithCause(err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if isImage(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, taskerrors.Stimulus(taskerrors.ErrStimulusFolderEmpty, "no image files in stimulus folder").
			WithContext(taskerrors.ContextCategory, category.String()).
			WithContext(taskerrors.ContextPair, fmt.Sprintf("Pair%d", pair)).
			WithContext(taskerrors.ContextPath, dir)
	}
	sort.Strings(files)
	d.cache[dir] = files
	return files, nil
}

func isImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg"
}

// Check verifies every pair of every category has at least one image.
func (d *DirInventory) Check(categories []task.Category, nPairs int) error {
	for _, c := range categories {
		for p := 1; p <= nPairs; p++ {
			if _, err := d.Images(c, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// MapInventory is an in-memory Inventory keyed by "<Category>/Pair<n>".
type MapInventory map[string][]string

// Images implements Inventory.
func (m MapInventory) Images(category task.Category, pair int) ([]string, error) {
	files := m[fmt.Sprintf("%s/Pair%d", category, pair)]
	if len(files) == 0 {
		return nil, taskerrors.Stimulus(taskerrors.ErrStimulusFolderEmpty, "no image files for pair").
			WithContext(taskerrors.ContextCategory, category.String()).
			WithContext(taskerrors.ContextPair, fmt.Sprintf("Pair%d", pair))
	}
	return files, nil
}

// NewMapInventory fills every pair of every category with two images named
// after the pair, for rehearsals without the image set.
func NewMapInventory(categories []task.Category, nPairs int) MapInventory {
	m := make(MapInventory)
	for _, c := range categories {
		for p := 1; p <= nPairs; p++ {
			key := fmt.Sprintf("%s/Pair%d", c, p)
			m[key] = []string{key + "/a.jpg", key + "/b.jpg"}
		}
	}
	return m
}
