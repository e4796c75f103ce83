package search

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/vidfuse/vidfuse/internal/errors"
	"github.com/vidfuse/vidfuse/internal/store"
)

// anchorFile is the on-disk anchor snapshot. Anchors are bound to the model
// that embedded them; loading under a different model must fail rather than
// silently route with vectors from the wrong space.
type anchorFile struct {
	Model      string
	Dimensions int
	Anchors    map[store.Modality][]float32
}

// SaveAnchors persists the anchor set to path. The write is atomic (temp
// file plus rename) and serialized against concurrent writers with an
// advisory file lock, so a crashed writer never leaves a torn file behind.
func SaveAnchors(path string, anchors *AnchorSet) error {
	snapshot, model, err := anchors.Snapshot()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to create anchors directory", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.New(errors.ErrCodeInternal, "failed to acquire anchors lock", err)
	}
	defer lock.Unlock()

	dims := 0
	for _, vec := range snapshot {
		dims = len(vec)
		break
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".anchors-*")
	if err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to create anchors temp file", err)
	}
	defer os.Remove(tmp.Name())

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(anchorFile{Model: model, Dimensions: dims, Anchors: snapshot}); err != nil {
		tmp.Close()
		return errors.New(errors.ErrCodeInternal, "failed to encode anchors", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.New(errors.ErrCodeDiskFull, "failed to flush anchors file", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to replace anchors file", err)
	}
	return nil
}

// LoadAnchors restores a persisted anchor set from path. The caller states
// the model it will query with; a mismatch is a corruption-class error
// because similarities across embedding spaces are meaningless.
func LoadAnchors(path, expectModel string) (*AnchorSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.AnchorsNotInitialized()
		}
		return nil, errors.New(errors.ErrCodeFilePermission, "failed to open anchors file", err)
	}
	defer f.Close()

	var file anchorFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return nil, errors.New(errors.ErrCodeAnchorsCorrupt, "failed to decode anchors file", err)
	}

	if expectModel != "" && file.Model != expectModel {
		return nil, errors.New(errors.ErrCodeAnchorsCorrupt,
			fmt.Sprintf("anchors were embedded with model %q, current model is %q", file.Model, expectModel), nil).
			WithSuggestion("run 'vidfuse anchors init --force' to re-embed anchors with the current model")
	}

	anchors := NewAnchorSet()
	if err := anchors.Restore(file.Anchors, file.Model); err != nil {
		return nil, err
	}
	return anchors, nil
}
