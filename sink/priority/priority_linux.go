//go:build linux
// +build linux

/*
NAME
  priority_linux.go

DESCRIPTION
  priority_linux.go elevates the calling OS thread to the SCHED_FIFO
  real-time scheduling policy on Linux ("attempt a real-time scheduling
  policy; on failure, log and continue at the default policy"). Only
  the calling OS thread is affected; cmd/sqfbridged calls it once from
  its main goroutine, which is not locked to that thread.

AUTHORS
  sqfbridge contributors

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package priority

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// RaiseRealtime attempts to set the calling OS thread's scheduling
// policy to SCHED_FIFO at the given priority (1-99). Failure is never
// fatal; callers log and continue at the default policy.
func RaiseRealtime(prio int) error {
	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(prio),
	}
	if err := unix.SchedSetattr(0, attr, 0); err != nil {
		return errors.Wrap(err, "priority: sched_setattr")
	}
	return nil
}
