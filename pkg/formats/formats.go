// Package formats provides parsers and writers for Gaussian splat scene
// files.
package formats

// Note: PLY (Stanford polygon format, splat vertex layout) is implemented in ply.go
