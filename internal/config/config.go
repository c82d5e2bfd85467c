// Package config loads bzzhost's swarm.toml configuration (§3.6, §6
// [FULL]). Grounded on cmd/gprobe/config.go's tomlSettings pattern: a
// naoina/toml Config with identity field-name mapping so TOML keys match
// the Go struct verbatim, and a toml.LineError wrapped with the file
// name for a useful error message.
package config

import (
	"bufio"
	"errors"
	"os"
	"reflect"

	"github.com/naoina/toml"
)

// Robot configures one simulated robot.
type Robot struct {
	ID      uint16
	Program string // path to a compiled .basm/.bzzb the robot runs
}

// Swarm is bzzhost's top-level configuration, read from -config swarm.toml.
type Swarm struct {
	Robots         []Robot
	MTU            int    `toml:",omitempty"` // packet size cap, §4.3 [FULL]
	StepIntervalMS int    `toml:",omitempty"`
	Net            string `toml:",omitempty"` // "", or a websocket listen address
	IncludePath    string `toml:",omitempty"` // overrides BUZZ_INCLUDE_PATH if set
}

// Defaults are applied before a config file (if any) is decoded over them.
var Defaults = Swarm{
	MTU:            127,
	StepIntervalMS: 100,
}

var settings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// Load reads and decodes a swarm.toml file over Defaults.
func Load(path string) (Swarm, error) {
	cfg := Defaults
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	err = settings.NewDecoder(bufio.NewReader(f)).Decode(&cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(path + ", " + err.Error())
	}
	return cfg, err
}
