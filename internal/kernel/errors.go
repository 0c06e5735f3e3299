package kernel

import "errors"

// ErrUnknownAlgorithm is returned by ParseAlgorithm and For when given a
// name or tag this build does not know about.
var ErrUnknownAlgorithm = errors.New("kernel: unknown algorithm")
