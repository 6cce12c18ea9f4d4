package iniconfig

import (
	"io/fs"
	"os"
	"path/filepath"
)

// walkINIFiles recursively collects every *.ini file under dir, implementing
// the [gaffer] include_dir directive's os.walk + fnmatch behavior.
func walkINIFiles(dir string) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if matched, _ := filepath.Match("*.ini", d.Name()); matched {
			matches = append(matches, path)
		}
		return nil
	})
	return matches, err
}

// defaultSocketDir returns the directory the default Unix-socket endpoint
// is created in when no [endpoint:*] section is configured.
func defaultSocketDir() string {
	return os.TempDir()
}
