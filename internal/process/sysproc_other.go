//go:build !linux

package process

import "syscall"

// sysProcAttr is a portable fallback for non-Linux platforms: uid/gid
// credential switching and process-group detachment rely on Linux-specific
// syscall.SysProcAttr fields, so other platforms get a bare SysProcAttr and
// run spawned processes under the daemon's own identity and process group.
func sysProcAttr(spec Spec) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}
