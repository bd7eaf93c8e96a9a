//go:build darwin

package main

import "golang.design/x/hotkey/mainthread"

// runOnMainThread starts the Cocoa run loop that Carbon hot keys are
// delivered on and runs fn beside it.
func runOnMainThread(fn func() int) int {
	code := 0
	mainthread.Init(func() { code = fn() })
	return code
}
