// Package images turns a list of file paths into a restartable sequence of
// labelled images.
package images

import (
	"io"
	"iter"
	"os"
	"path/filepath"
)

// Image is a file to be predicted. Label is the base name of Path.
type Image struct {
	Label string
	Path  string
}

// New creates an Image for path.
func New(path string) Image {
	return Image{Label: filepath.Base(path), Path: path}
}

// Open opens the image file for reading.
func (i Image) Open() (io.ReadCloser, error) {
	return os.Open(i.Path)
}

// Source is a finite, ordered collection of images. Files are not touched
// until they are opened.
type Source struct {
	paths []string
}

// Read creates a Source over paths, preserving their order.
func Read(paths ...string) *Source {
	return &Source{paths: append([]string(nil), paths...)}
}

// All yields (label, image) pairs in input order. Every call starts again
// from the first path.
func (s *Source) All() iter.Seq2[string, Image] {
	return func(yield func(string, Image) bool) {
		for _, path := range s.paths {
			img := New(path)
			if !yield(img.Label, img) {
				return
			}
		}
	}
}

// Len returns the number of images.
func (s *Source) Len() int {
	return len(s.paths)
}
