package cmd

import (
	"testing"

	"github.com/magiconair/properties/assert"

	"github.com/rubenlee11/HamGNN/InputParameters"
)

func TestRunLR(t *testing.T) {
	var (
		err error
	)
	fileInput := []byte(`
Title: Test Case
GridDims: [8, 8, 8]
LatticeVecs:
  - [6.0, 0.0, 0.0]
  - [0.0, 6.0, 0.0]
  - [0.0, 0.0, 6.0]
Sigma: 1.0
Cutoff: 3.0
Ranks: 2
Threads: 2
Species:
  - Name: A
    NumOrbitals: 2
    SupportRadius: 2.0
    Exponent: 0.8
Atoms:
  - Species: A
    Position: [0.0, 0.0, 0.0]
    Rank: 0
  - Species: A
    Position: [1.5, 1.5, 1.5]
    Rank: 1
`)
	var input InputParameters.InputParameters
	if err = input.Parse(fileInput); err != nil {
		panic(err)
	}
	assert.Equal(t, input.GridDims, [3]int{8, 8, 8})
	assert.Equal(t, input.Sigma, 1.)
	// The whole pipeline runs on two ranks without panicking.
	RunLR(&ModelLR{Verbose: true}, &input)
}
