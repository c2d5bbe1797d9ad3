package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"foxylend/crypto"

	"github.com/BurntSushi/toml"
)

// Genesis is the on-disk form of the lending module's initial state.
type Genesis struct {
	Admin         string       `toml:"Admin"`
	Custodian     string       `toml:"Custodian"`
	InterestSplit uint64       `toml:"InterestSplit"`
	Denom         string       `toml:"Denom"`
	Collections   []Collection `toml:"Collections"`
}

// Collection describes one registry entry. FloorPrice is a decimal string so
// amounts beyond 64 bits survive the TOML round trip.
type Collection struct {
	ID         uint16 `toml:"ID"`
	Name       string `toml:"Name"`
	FloorPrice string `toml:"FloorPrice"`
	APY        uint16 `toml:"APY"`
	MaxTime    uint64 `toml:"MaxTime"`
	Contract   string `toml:"Contract"`
}

// Load reads the genesis file at path. When the file does not exist a
// development genesis is written there and returned.
func Load(path string) (*Genesis, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	g := &Genesis{}
	meta, err := toml.DecodeFile(path, g)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("genesis file %s has unknown field %s", path, undecoded[0].String())
	}
	g.normalize()
	if err := ValidateGenesis(g); err != nil {
		return nil, fmt.Errorf("genesis file %s: %w", path, err)
	}
	return g, nil
}

func (g *Genesis) normalize() {
	g.Admin = strings.TrimSpace(g.Admin)
	g.Custodian = strings.TrimSpace(g.Custodian)
	g.Denom = strings.TrimSpace(g.Denom)
	if g.Denom == "" {
		g.Denom = DefaultDenom
	}
	if g.Collections == nil {
		g.Collections = []Collection{}
	}
	for i := range g.Collections {
		c := &g.Collections[i]
		c.Name = strings.TrimSpace(c.Name)
		c.FloorPrice = strings.TrimSpace(c.FloorPrice)
		c.Contract = strings.TrimSpace(c.Contract)
		if c.FloorPrice == "" {
			c.FloorPrice = "0"
		}
	}
}

// DefaultGenesis returns a development genesis whose participants are derived
// from fixed seeds.
func DefaultGenesis() *Genesis {
	return &Genesis{
		Admin:         crypto.AddressFromSeed("dev/admin").String(),
		Custodian:     crypto.AddressFromSeed("dev/custodian").String(),
		InterestSplit: 50,
		Denom:         DefaultDenom,
		Collections: []Collection{
			{
				ID:         1,
				Name:       "Dev Collection",
				FloorPrice: "1000000",
				APY:        10,
				MaxTime:    30 * 24 * 60 * 60,
				Contract:   crypto.AddressFromSeed("dev/collection/1").String(),
			},
		},
	}
}

// createDefault writes and returns the development genesis.
func createDefault(path string) (*Genesis, error) {
	g := DefaultGenesis()
	if err := Write(path, g); err != nil {
		return nil, err
	}
	return g, nil
}

// Write persists g as TOML, creating parent directories as needed.
func Write(path string, g *Genesis) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(g)
}
