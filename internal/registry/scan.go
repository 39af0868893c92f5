package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// ScanSlots fills in the content hash and existence flag for every slot that
// declares a path but no hash, reading artifact files relative to rootDir. A
// missing file marks the slot absent rather than failing the scan; the
// missing-slot sentinel is applied later by Build. Slots arriving with a
// pre-computed hash are trusted as-is.
func ScanSlots(m Manifest, rootDir string) (Manifest, error) {
	for i := range m.Standards {
		for j := range m.Standards[i].Rules {
			slots := m.Standards[i].Rules[j].Slots
			for k := range slots {
				slot := &slots[k]
				if slot.SHA256 != "" || slot.Path == "" {
					continue
				}
				sum, err := hashFile(filepath.Join(rootDir, slot.Path))
				if errors.Is(err, os.ErrNotExist) {
					slot.Exists = false
					continue
				}
				if err != nil {
					return Manifest{}, err
				}
				slot.SHA256 = sum
				slot.Exists = true
			}
		}
	}
	return m, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
