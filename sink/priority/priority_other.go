//go:build !linux
// +build !linux

/*
NAME
  priority_other.go

DESCRIPTION
  priority_other.go lets the bridge build on non-Linux platforms,
  leaving real-time scheduling elevation a no-op.

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

import "errors"

// RaiseRealtime is unsupported outside Linux; callers treat its error
// as non-fatal exactly as on Linux.
func RaiseRealtime(prio int) error {
	return errors.New("priority: SCHED_FIFO elevation unsupported on this platform")
}
