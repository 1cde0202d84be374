package InputParameters

import (
	"fmt"

	"github.com/ghodss/yaml"
)

// Parameters obtained from the YAML input file
type InputParameters struct {
	Title       string        `yaml:"Title"`
	GridDims    [3]int        `yaml:"GridDims"`    // points along each lattice vector
	LatticeVecs [3][3]float64 `yaml:"LatticeVecs"` // rows are the cell vectors
	Origin      [3]float64    `yaml:"Origin"`
	Sigma       float64       `yaml:"Sigma"`  // Gaussian screening width, 0 selects the default
	Cutoff      float64       `yaml:"Cutoff"` // neighbor-pair cutoff distance
	Ranks       int           `yaml:"Ranks"`
	Threads     int           `yaml:"Threads"`
	Species     []SpeciesSpec `yaml:"Species"`
	Atoms       []AtomSpec    `yaml:"Atoms"`
}

type SpeciesSpec struct {
	Name          string  `yaml:"Name"`
	NumOrbitals   int     `yaml:"NumOrbitals"`
	SupportRadius float64 `yaml:"SupportRadius"`
	Exponent      float64 `yaml:"Exponent"`
}

type AtomSpec struct {
	Species  string     `yaml:"Species"`
	Position [3]float64 `yaml:"Position"`
	Rank     int        `yaml:"Rank"`
}

func (ip *InputParameters) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, ip); err != nil {
		return err
	}
	return ip.validate()
}

func (ip *InputParameters) validate() error {
	for i, n := range ip.GridDims {
		if n < 1 {
			return fmt.Errorf("GridDims[%d] must be positive, have %d", i, n)
		}
	}
	if ip.Ranks < 1 {
		return fmt.Errorf("Ranks must be positive, have %d", ip.Ranks)
	}
	if ip.Threads < 1 {
		return fmt.Errorf("Threads must be positive, have %d", ip.Threads)
	}
	if ip.Cutoff <= 0 {
		return fmt.Errorf("Cutoff must be positive, have %g", ip.Cutoff)
	}
	if len(ip.Species) == 0 {
		return fmt.Errorf("no species defined")
	}
	if len(ip.Atoms) == 0 {
		return fmt.Errorf("no atoms defined")
	}
	for _, a := range ip.Atoms {
		if ip.SpeciesIndex(a.Species) < 0 {
			return fmt.Errorf("atom references unknown species %q", a.Species)
		}
		if a.Rank < 0 || a.Rank >= ip.Ranks {
			return fmt.Errorf("atom rank %d outside [0,%d)", a.Rank, ip.Ranks)
		}
	}
	return nil
}

// SpeciesIndex returns the position of name in the species list, -1 if absent.
func (ip *InputParameters) SpeciesIndex(name string) int {
	for i, sp := range ip.Species {
		if sp.Name == name {
			return i
		}
	}
	return -1
}

func (ip *InputParameters) Print() {
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("%v\t\t= GridDims\n", ip.GridDims)
	fmt.Printf("%8.5f\t\t= Sigma\n", ip.Sigma)
	fmt.Printf("%8.5f\t\t= Cutoff\n", ip.Cutoff)
	fmt.Printf("[%d]\t\t\t= Ranks\n", ip.Ranks)
	fmt.Printf("[%d]\t\t\t= Threads\n", ip.Threads)
	for _, sp := range ip.Species {
		fmt.Printf("Species[%s] = %d orbitals, radius %g, exponent %g\n",
			sp.Name, sp.NumOrbitals, sp.SupportRadius, sp.Exponent)
	}
	for i, a := range ip.Atoms {
		fmt.Printf("Atom[%d] = %s at %v on rank %d\n", i, a.Species, a.Position, a.Rank)
	}
}
