package pdflibwrappers

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNoCandidates is returned by [TryLoadLib] when it is called without any path.
var ErrNoCandidates = errors.New("no library paths given")

// Candidates expands a list of library basenames with the directories
// named in envVar (a list separated by the OS specific path list separator).
// The plain basenames come last, so that the dynamic loader's search path is tried, too.
func Candidates(envVar string, names ...string) []string {
	dirs := filepath.SplitList(os.Getenv(envVar))
	result := make([]string, 0, len(names)*(len(dirs)+1))
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range names {
			result = append(result, filepath.Join(dir, name))
		}
	}
	return append(result, names...)
}
