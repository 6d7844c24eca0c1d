// features.go - build-tag feature reporting, trimmed from the
// teacher's features.go down to the tags this engine actually uses.

package main

// compiledFeatures lists the build tags compiled into this binary.
// Headless-variant files append to it from their own init(); see
// gpu_device_headless.go.
var compiledFeatures []string
