//go:build !windows

package core

// createJunction is nil where directory junctions do not exist.
var createJunction func(target, link string) error
