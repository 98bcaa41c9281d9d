package model

import "path/filepath"

// Path represents a file system path.
type Path string

// Join appends elements to p.
func (p Path) Join(elem ...string) Path {
	return Path(filepath.Join(append([]string{string(p)}, elem...)...))
}

func (p Path) String() string {
	return string(p)
}
