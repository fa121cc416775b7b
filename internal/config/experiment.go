package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/headfix/internal/camera"
	"github.com/roach88/headfix/internal/controller"
	"github.com/roach88/headfix/internal/reward"
	"github.com/roach88/headfix/internal/session"
)

//go:embed experiment.cue
var experimentSchema []byte

// Rewards are solenoid opening times in seconds.
type Rewards struct {
	Default  float64 `yaml:"default"`
	Entrance float64 `yaml:"entrance"`
	Task     float64 `yaml:"task"`
}

// Camera mirrors camera.Params.
type Camera struct {
	Command      string  `yaml:"command"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	Framerate    float64 `yaml:"framerate"`
	ISO          int     `yaml:"iso"`
	ShutterSpeed int     `yaml:"shutter_speed"`
	Format       string  `yaml:"format"`
	Quality      int     `yaml:"quality"`
	Preview      []int   `yaml:"preview"`
	WhiteBalance bool    `yaml:"white_balance"`
}

// Stimulus selects a stimulus variant. Config is handed to the variant
// undecoded.
type Stimulus struct {
	Name   string    `yaml:"name"`
	Config yaml.Node `yaml:"config"`
}

// Notify configures stuck-subject text messages. No phones, no messages.
type Notify struct {
	Phones []string `yaml:"phones"`
	URL    string   `yaml:"url"`
}

// Trigger configures the UDP start/stop signal. No peers, no signal.
type Trigger struct {
	Peers []string `yaml:"peers"`
}

// Experiment holds the protocol settings. Durations are seconds.
type Experiment struct {
	DayStartHour       int     `yaml:"day_start_hour"`
	Timezone           string  `yaml:"timezone"`
	MaxEntryRewards    int     `yaml:"max_entry_rewards"`
	EntryRewardDelay   float64 `yaml:"entry_reward_delay"`
	HeadFixProbability float64 `yaml:"head_fix_probability"`
	InChamberLimit     float64 `yaml:"in_chamber_limit"`
	SettleTime         float64 `yaml:"settle_time"`
	Skedaddle          float64 `yaml:"skedaddle"`
	CameraStartDelay   float64 `yaml:"camera_start_delay"`
	PollTimeout        float64 `yaml:"poll_timeout"`

	Rewards  Rewards  `yaml:"rewards"`
	Camera   Camera   `yaml:"camera"`
	Stimulus Stimulus `yaml:"stimulus"`
	Notify   Notify   `yaml:"notify"`
	Trigger  Trigger  `yaml:"trigger"`
}

// DefaultExperiment returns the stock protocol.
func DefaultExperiment() Experiment {
	cc := controller.DefaultConfig()
	cp := camera.DefaultParams()
	return Experiment{
		DayStartHour:       cc.Days.StartHour,
		MaxEntryRewards:    cc.MaxEntryRewards,
		EntryRewardDelay:   cc.EntryRewardDelay.Seconds(),
		HeadFixProbability: cc.HeadFixProbability,
		InChamberLimit:     cc.InChamberLimit.Seconds(),
		SettleTime:         cc.SettleTime.Seconds(),
		Skedaddle:          cc.Skedaddle.Seconds(),
		CameraStartDelay:   cc.CameraStartDelay.Seconds(),
		PollTimeout:        cc.PollTimeout.Seconds(),
		Rewards: Rewards{
			Default:  reward.DefaultDuration.Seconds(),
			Entrance: 0.1,
			Task:     0.05,
		},
		Camera: Camera{
			Command:      cp.Command,
			Width:        cp.Width,
			Height:       cp.Height,
			Framerate:    cp.Framerate,
			ISO:          cp.ISO,
			ShutterSpeed: cp.ShutterSpeed,
			Format:       cp.Format,
			Quality:      cp.Quality,
			Preview:      cp.Preview[:],
			WhiteBalance: cp.WhiteBalance,
		},
		Stimulus: Stimulus{Name: "rewards"},
	}
}

// LoadExperiment reads experiment settings from path.
func LoadExperiment(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiment settings: %w", err)
	}
	e, err := ParseExperiment(path, data)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ParseExperiment validates data against the schema, then decodes it over
// the defaults. name is used in error positions.
func ParseExperiment(name string, data []byte) (*Experiment, error) {
	if err := ValidateSchema(name, data); err != nil {
		return nil, err
	}
	e := DefaultExperiment()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&e); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: decode experiment settings: %w", name, err)
	}
	if _, err := e.Location(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &e, nil
}

// ValidateSchema checks data against the embedded CUE schema.
func ValidateSchema(name string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(experimentSchema, cue.Filename("experiment.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile experiment schema: %w", err)
	}
	file, err := cueyaml.Extract(name, data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	def := schema.LookupPath(cue.ParsePath("#Experiment"))
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Location resolves Timezone; empty means the host's zone.
func (e *Experiment) Location() (*time.Location, error) {
	if e.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// Days returns the day boundary.
func (e *Experiment) Days() session.Clock {
	loc, err := e.Location()
	if err != nil {
		loc = time.Local
	}
	return session.Clock{StartHour: e.DayStartHour, Location: loc}
}

// ControllerConfig combines the protocol with the cage's input pins.
func (e *Experiment) ControllerConfig(cage *Cage) controller.Config {
	return controller.Config{
		Presence:           cage.TIRPin.Pin(),
		Contact:            cage.ContactPin.Pin(),
		PollTimeout:        seconds(e.PollTimeout),
		SettleTime:         seconds(e.SettleTime),
		EntryRewardDelay:   seconds(e.EntryRewardDelay),
		MaxEntryRewards:    e.MaxEntryRewards,
		HeadFixProbability: e.HeadFixProbability,
		InChamberLimit:     seconds(e.InChamberLimit),
		Skedaddle:          seconds(e.Skedaddle),
		CameraStartDelay:   seconds(e.CameraStartDelay),
		VideoFormat:        e.Camera.Format,
		Days:               e.Days(),
	}
}

// CameraParams converts the camera block.
func (e *Experiment) CameraParams() (camera.Params, error) {
	c := e.Camera
	if len(c.Preview) != 4 {
		return camera.Params{}, fmt.Errorf("camera preview needs 4 values, got %d", len(c.Preview))
	}
	p := camera.Params{
		Command:      c.Command,
		Width:        c.Width,
		Height:       c.Height,
		Framerate:    c.Framerate,
		ISO:          c.ISO,
		ShutterSpeed: c.ShutterSpeed,
		Format:       c.Format,
		Quality:      c.Quality,
		WhiteBalance: c.WhiteBalance,
	}
	copy(p.Preview[:], c.Preview)
	return p, p.Validate()
}

// DefineRewards adds the entrance and task categories to l.
func (e *Experiment) DefineRewards(l *reward.Ledger) {
	l.Define(controller.EntranceCategory, seconds(e.Rewards.Entrance))
	l.Define(controller.TaskCategory, seconds(e.Rewards.Task))
}

// DefaultReward is the opening time of the default category.
func (e *Experiment) DefaultReward() time.Duration {
	return seconds(e.Rewards.Default)
}

// StimulusConfig returns the stimulus block, or nil when absent.
func (e *Experiment) StimulusConfig() *yaml.Node {
	if e.Stimulus.Config.Kind == 0 {
		return nil
	}
	return &e.Stimulus.Config
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
