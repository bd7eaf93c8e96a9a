//go:build windows

package main

import "golang.org/x/sys/windows"

const codePageUTF8 = 65001

// setConsoleUTF8 switches the console to UTF-8 so binding names and
// recognized text print correctly when logging to stderr.
func setConsoleUTF8() {
	_ = windows.SetConsoleOutputCP(codePageUTF8)
	_ = windows.SetConsoleCP(codePageUTF8)
}
