//go:build tinygo

package kernel

// TinyGo has no runtime stack walker.
func captureStack() []byte { return nil }
