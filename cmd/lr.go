/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/rubenlee11/HamGNN/InputParameters"
	"github.com/rubenlee11/HamGNN/comm"
	"github.com/rubenlee11/HamGNN/grid"
	"github.com/rubenlee11/HamGNN/hamiltonian"
	"github.com/rubenlee11/HamGNN/vlr"
)

type ModelLR struct {
	ICFile  string
	Profile bool
	Verbose bool
}

// LRCmd represents the lr command
var LRCmd = &cobra.Command{
	Use:   "lr",
	Short: "Long-range Hamiltonian pipeline: Poisson solve, redistribution, quadrature, assembly",
	Long: `Long-range Hamiltonian pipeline: Poisson solve, redistribution, quadrature, assembly

hamgnn lr -I case.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
			mlr = &ModelLR{}
		)
		fmt.Println("lr called")
		if mlr.ICFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			panic(err)
		}
		mlr.Profile, _ = cmd.Flags().GetBool("profile")
		mlr.Verbose, _ = cmd.Flags().GetBool("verbose")
		ip := processInput(mlr)
		if mlr.Profile {
			defer profile.Start(profile.CPUProfile).Stop()
		}
		RunLR(mlr, ip)
	},
}

func processInput(mlr *ModelLR) (ip *InputParameters.InputParameters) {
	var (
		err error
	)
	if len(mlr.ICFile) == 0 {
		err = fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile) in YAML format")
		fmt.Printf("error: %s\n", err.Error())
		exampleFile := `
########################################
Title: "Two Atoms"
GridDims: [16, 16, 16]
LatticeVecs:
  - [10.0, 0.0, 0.0]
  - [0.0, 10.0, 0.0]
  - [0.0, 0.0, 10.0]
Sigma: 1.0
Cutoff: 4.0
Ranks: 2
Threads: 4
Species:
  - {Name: Si, NumOrbitals: 4, SupportRadius: 3.5, Exponent: 0.8}
Atoms:
  - {Species: Si, Position: [0.0, 0.0, 0.0], Rank: 0}
  - {Species: Si, Position: [2.7, 2.7, 2.7], Rank: 1}
########################################
`
		fmt.Printf("Example File:%s\n", exampleFile)
		os.Exit(1)
	}
	var data []byte
	if data, err = ioutil.ReadFile(mlr.ICFile); err != nil {
		panic(err)
	}
	ip = &InputParameters.InputParameters{}
	if err = ip.Parse(data); err != nil {
		panic(err)
	}
	return
}

func init() {
	rootCmd.AddCommand(LRCmd)
	LRCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file with grid, lattice, species and atom parameters")
	LRCmd.Flags().BoolP("profile", "p", false, "write a CPU profile while computing")
	LRCmd.Flags().BoolP("verbose", "v", false, "print per-rank pipeline progress")
}

func RunLR(mlr *ModelLR, ip *InputParameters.InputParameters) {
	var (
		np  = ip.Ranks
		err error
	)
	ip.Print()

	geom, err := grid.NewGeometry(ip.GridDims[0], ip.GridDims[1], ip.GridDims[2], ip.LatticeVecs, ip.Origin)
	if err != nil {
		panic(err)
	}
	sys := buildSystem(ip)
	if err = hamiltonian.BuildNeighbors(geom, sys, ip.Cutoff); err != nil {
		panic(err)
	}

	partB, err := grid.NewSlabPartition(geom, np)
	if err != nil {
		panic(err)
	}
	partC, err := grid.NewSupportPartition(geom, np, sys.Positions, sys.AtomRank)
	if err != nil {
		panic(err)
	}
	plan, err := grid.BuildPlan(partB, partC)
	if err != nil {
		panic(err)
	}
	rd := grid.NewRedistributor(plan)

	solver, err := vlr.NewSolver(geom, partB, ip.Sigma)
	if err != nil {
		panic(err)
	}
	cl, err := comm.NewCluster(np)
	if err != nil {
		panic(err)
	}

	cl.Run(func(c *comm.Comm) {
		me := c.Rank()
		sup, err := hamiltonian.BuildSupports(geom, sys, partC, me)
		if err != nil {
			panic(err)
		}
		orb := hamiltonian.BuildOrbitals(geom, sys, sup.Atom, me)
		if mlr.Verbose {
			fmt.Printf("%s\n", sup)
		}

		// One long-range field per source atom, solved in slab layout then
		// moved to the quadrature layout.
		fieldsB, err := solver.Solve(c, sys.Positions)
		if err != nil {
			panic(err)
		}
		fieldsC := make([][]float64, len(fieldsB))
		for s := range fieldsB {
			fieldsC[s] = rd.Redistribute(c, fieldsB[s])
			if mlr.Verbose {
				sum := c.AllreduceSum(floats.Sum(fieldsC[s]))
				if me == 0 {
					fmt.Printf("source %d: field sum %12.5e\n", s, sum)
				}
			}
		}

		if err = hamiltonian.ExchangeOrbitals(c, sup, orb); err != nil {
			panic(err)
		}
		halo, err := hamiltonian.BuildFieldHalo(c, partC, sup.HaloGN)
		if err != nil {
			panic(err)
		}
		eng, err := hamiltonian.NewEngine(sup, orb, halo, ip.Threads)
		if err != nil {
			panic(err)
		}
		blocks, err := eng.AccumulateBlocks(c, fieldsC, nil)
		if err != nil {
			panic(err)
		}

		// Sum the per-source contributions and gather the sparse matrix.
		total := eng.NewBlocks(1)[0]
		for s := range blocks {
			for mi := range blocks[s] {
				for h := range blocks[s][mi] {
					total[mi][h].Add(total[mi][h], blocks[s][mi][h])
				}
			}
		}
		hlr, err := hamiltonian.GatherAssemble(c, sys, total)
		if err != nil {
			panic(err)
		}
		if me == 0 {
			r, _ := hlr.Dims()
			fmt.Printf("assembled %dx%d long-range Hamiltonian, %d nonzeros\n", r, r, hlr.NNZ())
		}
	})
}

func buildSystem(ip *InputParameters.InputParameters) *hamiltonian.System {
	sys := &hamiltonian.System{}
	for _, sp := range ip.Species {
		sys.Species = append(sys.Species, hamiltonian.Species{
			Name:          sp.Name,
			NumOrbitals:   sp.NumOrbitals,
			SupportRadius: sp.SupportRadius,
			Exponent:      sp.Exponent,
		})
	}
	for _, a := range ip.Atoms {
		sys.AtomSpecies = append(sys.AtomSpecies, ip.SpeciesIndex(a.Species))
		sys.AtomRank = append(sys.AtomRank, a.Rank)
		sys.Positions = append(sys.Positions, a.Position)
	}
	return sys
}
