package core

import "path/filepath"

// newLinkFunc returns a link function that tries symlink first and, when it
// fails, junction with an absolute target. A nil junction means the platform
// has no fallback and the symlink error is returned as is.
func newLinkFunc(symlink, junction func(oldname, newname string) error) func(oldname, newname string) error {
	return func(oldname, newname string) error {
		err := symlink(oldname, newname)
		if err == nil || junction == nil {
			return err
		}
		target := oldname
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(newname), target)
		}
		if junction(target, newname) != nil {
			return err
		}
		return nil
	}
}
