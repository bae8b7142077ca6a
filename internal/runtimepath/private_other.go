//go:build !unix

package runtimepath

func checkPrivate(string) error { return nil }
