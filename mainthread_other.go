//go:build !darwin

package main

func runOnMainThread(fn func() int) int { return fn() }
