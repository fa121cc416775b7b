package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/tidwall/jsonc"

	"github.com/roach88/headfix/internal/hw"
)

// PinName is a pin given either as a BCM number or as a driver name.
type PinName string

// UnmarshalJSON accepts 17 and "GPIO17" alike.
func (p *PinName) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n < 0 {
			return fmt.Errorf("pin %d must not be negative", n)
		}
		*p = PinName(strconv.Itoa(n))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("pin must be a number or a name, got %s", data)
	}
	*p = PinName(s)
	return nil
}

// Pin converts to the hardware pin identifier.
func (p PinName) Pin() hw.Pin { return hw.Pin(p) }

// Cage holds the hardware settings of one cage.
type Cage struct {
	CageID      string  `json:"Cage ID"`
	PistonsPin  PinName `json:"Pistons Pin"`
	RewardPin   PinName `json:"Reward Pin"`
	TIRPin      PinName `json:"Tag In Range Pin"`
	ContactPin  PinName `json:"Head Contact Pin"`
	LEDPin      PinName `json:"LED Pin"`
	SerialPort  string  `json:"Serial Port"`
	DataPath    string  `json:"Path to Save Data"`
	DataOwner   string  `json:"Data Owner,omitempty"`
	TagChecksum bool    `json:"Tag Checksum,omitempty"`
}

// LoadCage reads cage settings from path.
func LoadCage(path string) (*Cage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cage settings: %w", err)
	}
	c, err := ParseCage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseCage decodes and validates cage settings. Comments and trailing
// commas are allowed; unknown keys are not.
func ParseCage(data []byte) (*Cage, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.DisallowUnknownFields()
	var c Cage
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode cage settings: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every required setting is present and that no pin
// is assigned twice.
func (c *Cage) Validate() error {
	var errs []error
	required := []struct{ name, value string }{
		{"Cage ID", c.CageID},
		{"Serial Port", c.SerialPort},
		{"Path to Save Data", c.DataPath},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%q is required", r.name))
		}
	}
	seen := make(map[PinName]string)
	for _, p := range c.pins() {
		if p.pin == "" {
			errs = append(errs, fmt.Errorf("%q is required", p.name))
			continue
		}
		if other, dup := seen[p.pin]; dup {
			errs = append(errs, fmt.Errorf("%q and %q share pin %s", other, p.name, p.pin))
			continue
		}
		seen[p.pin] = p.name
	}
	return errors.Join(errs...)
}

type namedPin struct {
	name string
	pin  PinName
}

func (c *Cage) pins() []namedPin {
	return []namedPin{
		{"Pistons Pin", c.PistonsPin},
		{"Reward Pin", c.RewardPin},
		{"Tag In Range Pin", c.TIRPin},
		{"Head Contact Pin", c.ContactPin},
		{"LED Pin", c.LEDPin},
	}
}
