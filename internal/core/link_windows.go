//go:build windows

package core

import (
	"fmt"
	"os/exec"
	"strings"
)

// createJunction links a directory with mklink /J, which needs no privilege.
var createJunction = func(target, link string) error {
	out, err := exec.Command("cmd", "/c", "mklink", "/J", link, target).CombinedOutput()
	if err != nil {
		return fmt.Errorf("mklink /J: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}
