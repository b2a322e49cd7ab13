package vortex

// config.go generalizes desc-topo.go's DevExecList Read/Write pair
// (a named collection, dual-format WriteToFile keyed off the file
// extension, ReadX(filename, useYAML, dict) accepting either an
// in-memory byte slice or a filename) from device-execution-timing
// tables to the ConfigGraph/ConfigComponent/ConfigLink shape spec.md
// §3/§4.9 describe as the wire-up stage's input.

import (
	"encoding/json"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// ConfigComponent describes one component to be instantiated at
// wire-up: its declared type (looked up in the ComponentRegistry), a
// suggested (rank, thread) placement (the Partitioner may override
// this), and its configuration parameters.
type ConfigComponent struct {
	Name   string            `json:"name" yaml:"name"`
	Type   string            `json:"type" yaml:"type"`
	Rank   int               `json:"rank" yaml:"rank"`
	Thread int               `json:"thread" yaml:"thread"`
	Params map[string]string `json:"params" yaml:"params"`
	// SharedSets names shared Params sets (declared in the enclosing
	// ConfigGraph's SharedParams list) this component should attach.
	SharedSets []string `json:"shared_sets,omitempty" yaml:"shared_sets,omitempty"`
}

// ConfigLink describes one edge between two component ports.
type ConfigLink struct {
	Name      string  `json:"name" yaml:"name"`
	EndpointA string  `json:"endpoint_a" yaml:"endpoint_a"` // "component.port"
	EndpointB string  `json:"endpoint_b" yaml:"endpoint_b"`
	Latency   float64 `json:"latency_seconds" yaml:"latency_seconds"`
	EventType string  `json:"event_type,omitempty" yaml:"event_type,omitempty"`
}

// ConfigSharedParams is a named, reusable Params layer, referenced by
// name from any ConfigComponent's SharedSets.
type ConfigSharedParams struct {
	Name   string            `json:"name" yaml:"name"`
	Params map[string]string `json:"params" yaml:"params"`
}

// ConfigStatistic declares one Statistic to enroll at wire-up, per
// spec.md §4.8. Component names the owning ConfigComponent; Mode is
// "periodic", "count", or "dumpatend" (case-insensitive, default
// "periodic"); CollectionRate is the sample-count threshold (count
// mode). Periodic statistics ignore it and flush at the engine-wide
// statistics period (the CLI's --stat-period).
//
// ResetOnOutput and ClearOnOutput mirror spec.md §3's Statistic flags:
// either one zeroes the accumulator after every flush (a COUNT-mode
// statistic always does, regardless of these flags). Disabled starts
// the statistic inactive; StartAt/StopAt, if set (TimeConverter
// strings like "1ms"), install the one-shot enable/disable actions
// spec.md §4.8 calls startEvent/stopEvent — a non-empty StartAt
// implies the statistic begins disabled until that tick fires.
type ConfigStatistic struct {
	Component      string `json:"component" yaml:"component"`
	Name           string `json:"name" yaml:"name"`
	Mode           string `json:"mode,omitempty" yaml:"mode,omitempty"`
	CollectionRate uint64 `json:"collection_rate,omitempty" yaml:"collection_rate,omitempty"`
	ResetOnOutput  bool   `json:"reset_on_output,omitempty" yaml:"reset_on_output,omitempty"`
	ClearOnOutput  bool   `json:"clear_on_output,omitempty" yaml:"clear_on_output,omitempty"`
	// RollingWindow, if non-zero, makes a PERIODIC statistic report
	// a sliding sum/count over only its most recent RollingWindow
	// samples instead of its full history, per statengine.cc's
	// n-sample rolling window (distinct from ResetOnOutput/
	// ClearOnOutput's full reset-to-zero).
	RollingWindow uint64 `json:"rolling_window,omitempty" yaml:"rolling_window,omitempty"`
	Disabled      bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	StartAt       string `json:"start_at,omitempty" yaml:"start_at,omitempty"`
	StopAt        string `json:"stop_at,omitempty" yaml:"stop_at,omitempty"`
}

// ConfigGraph is the full wire-up input: every component and link in
// the model, plus process-topology and timing configuration, per
// spec.md §2/§6.
type ConfigGraph struct {
	ExpName      string               `json:"exp_name" yaml:"exp_name"`
	NumRanks     int                  `json:"num_ranks" yaml:"num_ranks"`
	NumThreads   int                  `json:"num_threads" yaml:"num_threads"`
	BasePeriod   string               `json:"base_period" yaml:"base_period"`
	StopAt       string               `json:"stop_at,omitempty" yaml:"stop_at,omitempty"`
	Components   []ConfigComponent    `json:"components" yaml:"components"`
	Links        []ConfigLink         `json:"links" yaml:"links"`
	SharedParams []ConfigSharedParams `json:"shared_params,omitempty" yaml:"shared_params,omitempty"`
	Statistics   []ConfigStatistic    `json:"statistics,omitempty" yaml:"statistics,omitempty"`
}

// CreateConfigGraph is a constructor for building a ConfigGraph up
// programmatically (as opposed to reading one from a file).
func CreateConfigGraph(expName string, numRanks, numThreads int, basePeriod string) *ConfigGraph {
	return &ConfigGraph{
		ExpName:    expName,
		NumRanks:   numRanks,
		NumThreads: numThreads,
		BasePeriod: basePeriod,
	}
}

// AddComponent appends a component description.
func (cg *ConfigGraph) AddComponent(c ConfigComponent) {
	cg.Components = append(cg.Components, c)
}

// AddLink appends a link description.
func (cg *ConfigGraph) AddLink(l ConfigLink) {
	cg.Links = append(cg.Links, l)
}

// AddStatistic appends a statistic declaration.
func (cg *ConfigGraph) AddStatistic(s ConfigStatistic) {
	cg.Statistics = append(cg.Statistics, s)
}

// WriteToFile serializes cg to filename, choosing YAML or JSON by
// extension, exactly as desc-topo.go's WriteToFile does.
func (cg *ConfigGraph) WriteToFile(filename string) error {
	ext := path.Ext(filename)
	var bytes []byte
	var err error
	switch ext {
	case ".yaml", ".YAML", ".yml":
		bytes, err = yaml.Marshal(*cg)
	case ".json", ".JSON":
		bytes, err = json.MarshalIndent(*cg, "", "\t")
	default:
		panic("config: unrecognized output extension " + ext)
	}
	if err != nil {
		panic(err)
	}
	f, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	_, err = f.Write(bytes)
	return err
}

// ReadConfigGraph deserializes a ConfigGraph, either from dict
// directly (if non-empty) or from filename otherwise, mirroring
// desc-topo.go's ReadDevExecList(filename, useYAML, dict) contract.
func ReadConfigGraph(filename string, useYAML bool, dict []byte) (*ConfigGraph, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}
	cg := &ConfigGraph{}
	if useYAML {
		err = yaml.Unmarshal(dict, cg)
	} else {
		err = json.Unmarshal(dict, cg)
	}
	if err != nil {
		return nil, err
	}
	return cg, nil
}
