package vfs

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// MaxDiskBytes is the capacity of the virtual disk (2 MiB). Compiler sources,
// include files and AOT output all live here.
const MaxDiskBytes = 2 * 1024 * 1024

// validPathRE accepts flat or slash-separated paths of sane segments.
var validPathRE = regexp.MustCompile(`^/?[a-zA-Z0-9_.\-]{1,32}(/[a-zA-Z0-9_.\-]{1,32})*$`)

// validPath rejects malformed paths and "."/".." traversal segments.
func validPath(path string) bool {
	if !validPathRE.MatchString(path) {
		return false
	}
	for _, seg := range strings.Split(normalize(path), "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

var (
	ErrFileNotFound  = errors.New("file not found")
	ErrInvalidPath   = errors.New("invalid path")
	ErrQuotaExceeded = errors.New("disk quota exceeded")
)

type FileEntry struct {
	Data     []byte
	Created  time.Time
	Modified time.Time
}

// VirtualDisk is an in-memory filesystem with a byte quota and dirty-file
// tracking for persistence to a host directory.
type VirtualDisk struct {
	Mu         sync.RWMutex
	Files      map[string]*FileEntry
	DirtyFiles map[string]bool
	UsedBytes  int
	Dirty      bool
}

func NewVirtualDisk() *VirtualDisk {
	return &VirtualDisk{
		Files:      make(map[string]*FileEntry),
		DirtyFiles: make(map[string]bool),
	}
}

// normalize strips a leading slash so "/boot/rc.c" and "boot/rc.c" are the
// same entry.
func normalize(path string) string {
	return strings.TrimPrefix(path, "/")
}

// Write stores data under path, overwriting any previous content. The data is
// deep-copied so callers may reuse their buffer.
func (vd *VirtualDisk) Write(path string, data []byte) error {
	vd.Mu.Lock()
	defer vd.Mu.Unlock()

	if !validPath(path) {
		return ErrInvalidPath
	}
	path = normalize(path)

	oldSize := 0
	var entry *FileEntry
	if existing, ok := vd.Files[path]; ok {
		oldSize = len(existing.Data)
		entry = existing
	}

	newSize := len(data)
	if vd.UsedBytes-oldSize+newSize > MaxDiskBytes {
		return ErrQuotaExceeded
	}

	newData := make([]byte, newSize)
	copy(newData, data)

	if entry == nil {
		entry = &FileEntry{Created: time.Now()}
		vd.Files[path] = entry
	}
	entry.Data = newData
	entry.Modified = time.Now()

	vd.DirtyFiles[path] = true
	vd.UsedBytes = vd.UsedBytes - oldSize + newSize
	vd.Dirty = true

	return nil
}

// Read returns the content stored under path.
func (vd *VirtualDisk) Read(path string) ([]byte, error) {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	if !validPath(path) {
		return nil, ErrInvalidPath
	}
	entry, ok := vd.Files[normalize(path)]
	if !ok {
		return nil, ErrFileNotFound
	}
	return entry.Data, nil
}

// Size returns the byte length of the file at path.
func (vd *VirtualDisk) Size(path string) (int, error) {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	if !validPath(path) {
		return 0, ErrInvalidPath
	}
	entry, ok := vd.Files[normalize(path)]
	if !ok {
		return 0, ErrFileNotFound
	}
	return len(entry.Data), nil
}

// Delete removes the file at path.
func (vd *VirtualDisk) Delete(path string) error {
	vd.Mu.Lock()
	defer vd.Mu.Unlock()

	if !validPath(path) {
		return ErrInvalidPath
	}
	path = normalize(path)
	entry, ok := vd.Files[path]
	if !ok {
		return ErrFileNotFound
	}

	vd.UsedBytes -= len(entry.Data)
	delete(vd.Files, path)

	// Mark as dirty so persistence removes it from the host directory too.
	vd.DirtyFiles[path] = true
	vd.Dirty = true

	return nil
}

// FreeSpace returns the number of free bytes on the disk.
func (vd *VirtualDisk) FreeSpace() int {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()
	return MaxDiskBytes - vd.UsedBytes
}

// List returns all stored paths, sorted.
func (vd *VirtualDisk) List() []string {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	keys := make([]string, 0, len(vd.Files))
	for k := range vd.Files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetMeta returns the creation and modification time of the file at path.
func (vd *VirtualDisk) GetMeta(path string) (time.Time, time.Time, error) {
	vd.Mu.RLock()
	defer vd.Mu.RUnlock()

	if !validPath(path) {
		return time.Time{}, time.Time{}, ErrInvalidPath
	}
	entry, ok := vd.Files[normalize(path)]
	if !ok {
		return time.Time{}, time.Time{}, ErrFileNotFound
	}
	return entry.Created, entry.Modified, nil
}

// LoadFrom populates the disk from regular files under a host directory.
// Files with names the VFS rejects are skipped silently. A missing directory
// is not an error (first run).
func (vd *VirtualDisk) LoadFrom(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	vd.Mu.Lock()
	defer vd.Mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !validPath(name) {
			continue
		}

		fullPath := filepath.Join(path, name)
		raw, err := os.ReadFile(fullPath)
		if err != nil {
			continue
		}

		fileEntry := &FileEntry{
			Data:     raw,
			Created:  time.Now(),
			Modified: time.Now(),
		}
		if info, err := os.Stat(fullPath); err == nil {
			fileEntry.Created = info.ModTime()
			fileEntry.Modified = info.ModTime()
		}

		vd.Files[name] = fileEntry
		vd.UsedBytes += len(raw)
	}

	return nil
}

// PersistTo writes all dirty files to a host directory, creating it if
// needed. Deleted files are removed. Returns the first error encountered.
func (vd *VirtualDisk) PersistTo(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}

	// Snapshot dirty entries under the lock, then do I/O without it.
	vd.Mu.Lock()
	snapshot := make(map[string]*FileEntry)
	deleted := make([]string, 0)
	for name := range vd.DirtyFiles {
		if entry, ok := vd.Files[name]; ok {
			newData := make([]byte, len(entry.Data))
			copy(newData, entry.Data)
			snapshot[name] = &FileEntry{Data: newData, Created: entry.Created, Modified: entry.Modified}
		} else {
			deleted = append(deleted, name)
		}
		delete(vd.DirtyFiles, name)
	}
	if len(vd.DirtyFiles) == 0 {
		vd.Dirty = false
	}
	vd.Mu.Unlock()

	var firstErr error

	for _, name := range deleted {
		hostName := strings.ReplaceAll(name, "/", "_")
		if err := os.Remove(filepath.Join(path, hostName)); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for name, entry := range snapshot {
		hostName := strings.ReplaceAll(name, "/", "_")
		if err := os.WriteFile(filepath.Join(path, hostName), entry.Data, 0644); err != nil {
			vd.Mu.Lock()
			vd.DirtyFiles[name] = true
			vd.Dirty = true
			vd.Mu.Unlock()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			_ = os.Chtimes(filepath.Join(path, hostName), time.Now(), entry.Modified)
		}
	}

	return firstErr
}
