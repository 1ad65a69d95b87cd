// Package formats reads and writes the data files of SMPL-family body
// models: NumPy .npy arrays, pose files and AMASS motion sequences.
//
// Archives of arrays (.npz) are read through ArraySource so this package
// does not depend on the zip container; see package npz.
package formats
