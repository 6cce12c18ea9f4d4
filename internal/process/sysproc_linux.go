//go:build linux

package process

import "syscall"

// sysProcAttr builds the OS-specific process attributes for spec: uid/gid
// credentials when requested, and a detached process group when Detach is
// set so the whole tree can be signaled via -pid.
func sysProcAttr(spec Spec) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{}

	if spec.Detach {
		attr.Setpgid = true
		attr.Pgid = 0
	}

	if spec.SetUID || spec.SetGID {
		cred := &syscall.Credential{}
		if spec.SetUID {
			cred.Uid = uint32(spec.UID)
		}
		if spec.SetGID {
			cred.Gid = uint32(spec.GID)
		}
		attr.Credential = cred
	}

	return attr
}
