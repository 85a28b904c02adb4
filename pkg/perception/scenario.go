package perception

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soundprediction/robomem/pkg/spatial"
	"github.com/soundprediction/robomem/pkg/types"
)

// Scenario is a recorded robot run.
//
//	name: corridor
//	world_type: static
//	start: 2025-03-01T12:00:00Z
//	ticks:
//	  - at: 0.5
//	    pose: {x: 0, y: 0}
//	    orientation: 0
//	    lidar: [1.5, 2.0]
//	    image: frames/0000.jpg
//	    percept: '{"visual_description": "a red can", "objects": [{"type": "target", "distance": 2, "bearing": 0.3}]}'
//	  - at: 1.0
//	    pose: {x: 0.5, y: 0}
//	    mentions:
//	      - type: target
//	        relative: {distance: 1.5, bearing: 0.4}
//
// A tick gives either the recorded model output in percept or decoded
// mentions. image names a camera frame relative to the scenario file; it is
// only read when the replay runs a live vision model.
type Scenario struct {
	Name      string         `yaml:"name"`
	WorldType string         `yaml:"world_type"`
	Start     time.Time      `yaml:"start"`
	Ticks     []ScenarioTick `yaml:"ticks"`

	dir string
}

// ScenarioTick is one step of a Scenario.
type ScenarioTick struct {
	// At is the offset from Scenario.Start in seconds.
	At          float64          `yaml:"at"`
	Pose        spatial.Position `yaml:"pose"`
	Orientation float64          `yaml:"orientation"`
	Lidar       []float64        `yaml:"lidar"`
	Image       string           `yaml:"image"`

	Percept           string                `yaml:"percept"`
	VisualDescription string                `yaml:"visual_description"`
	LidarDescription  string                `yaml:"lidar_description"`
	Mentions          []types.EntityMention `yaml:"mentions"`
}

// LoadScenario decodes a YAML scenario.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	if s.Start.IsZero() {
		s.Start = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	for i, t := range s.Ticks {
		if t.Percept != "" && len(t.Mentions) > 0 {
			return nil, fmt.Errorf("tick %d: percept and mentions are exclusive", i)
		}
	}
	return &s, nil
}

// LoadScenarioFile reads a scenario from path. Image paths resolve against
// the file's directory.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := LoadScenario(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

func (s *Scenario) tickTime(st ScenarioTick) time.Time {
	return s.Start.Add(time.Duration(st.At * float64(time.Second)))
}

// Bridge replays the scenario ticks in file order. With frames set, the
// camera frames named by the ticks are loaded into Tick.Image.
func (s *Scenario) Bridge(frames bool) (*SliceBridge, error) {
	ticks := make([]Tick, len(s.Ticks))
	for i, st := range s.Ticks {
		ticks[i] = Tick{
			Time:        s.tickTime(st),
			Pose:        st.Pose,
			Orientation: st.Orientation,
			Lidar:       st.Lidar,
		}
		if !frames || st.Image == "" {
			continue
		}
		path := st.Image
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.dir, path)
		}
		img, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("tick %d: failed to read frame: %w", i, err)
		}
		ticks[i].Image = img
	}
	return NewSliceBridge(ticks), nil
}

// Pipeline interprets ticks from the recording: percepts are decoded,
// otherwise the recorded mentions are used as they are.
func (s *Scenario) Pipeline() Pipeline {
	byTime := make(map[time.Time]ScenarioTick, len(s.Ticks))
	for _, st := range s.Ticks {
		byTime[s.tickTime(st)] = st
	}
	return PipelineFunc(func(ctx context.Context, tick Tick) (Percept, error) {
		st, ok := byTime[tick.Time]
		if !ok {
			return Percept{}, fmt.Errorf("no recorded tick at %s", tick.Time.Format(time.RFC3339Nano))
		}
		if st.Percept != "" {
			return DecodePercept(st.Percept)
		}
		return Percept{
			VisualDescription: st.VisualDescription,
			LidarDescription:  st.LidarDescription,
			Mentions:          st.Mentions,
		}, nil
	})
}
