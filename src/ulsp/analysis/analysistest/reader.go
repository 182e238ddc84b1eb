package analysistest

import (
	"io/fs"
	"sync"
)

// MapReader is a SourceReader backed by a map from path to text.
type MapReader struct {
	mu    sync.Mutex
	files map[string]string
}

// NewMapReader returns a reader over a copy of files.
func NewMapReader(files map[string]string) *MapReader {
	r := &MapReader{files: make(map[string]string, len(files))}
	for k, v := range files {
		r.files[k] = v
	}
	return r
}

// ReadSource returns the text of path or fs.ErrNotExist.
func (r *MapReader) ReadSource(path string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, ok := r.files[path]
	if !ok {
		return "", &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	return text, nil
}

// Set adds or replaces a file.
func (r *MapReader) Set(path, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[path] = text
}

// Delete removes a file.
func (r *MapReader) Delete(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.files, path)
}
