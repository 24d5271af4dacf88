package hal

import (
	"errors"
	"fmt"

	"github.com/warthog618/gpiod"
)

// ChipPinConfig maps the modem control lines to offsets on a GPIO chip.
type ChipPinConfig struct {
	Chip         string `yaml:"chip"`
	Consumer     string `yaml:"consumer"`
	Power        int    `yaml:"power"`
	Reset        int    `yaml:"reset"`
	BufferEnable int    `yaml:"buffer_enable"`
	PowerGood    int    `yaml:"power_good"`
}

// ChipPins is a PinSet backed by character device GPIO lines.
type ChipPins struct {
	PinSet
	chip  *gpiod.Chip
	lines []*gpiod.Line
}

// OpenChipPins requests the control lines. Outputs start high, which keeps
// power and reset released and the level translator disabled.
func OpenChipPins(cfg ChipPinConfig) (*ChipPins, error) {
	consumer := cfg.Consumer
	if consumer == "" {
		consumer = "ncp"
	}
	c, err := gpiod.NewChip(cfg.Chip, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("failed to create GPIO chip: %w", err)
	}

	p := &ChipPins{chip: c}
	request := func(name string, offset int, opt gpiod.LineReqOption) (*gpiod.Line, error) {
		l, err := c.RequestLine(offset, opt)
		if err != nil {
			return nil, fmt.Errorf("failed to request %s GPIO line %d: %w", name, offset, err)
		}
		p.lines = append(p.lines, l)
		return l, nil
	}

	var (
		power, reset, bufen, vint *gpiod.Line
	)
	if power, err = request("power", cfg.Power, gpiod.AsOutput(High)); err == nil {
		if reset, err = request("reset", cfg.Reset, gpiod.AsOutput(High)); err == nil {
			if bufen, err = request("buffer enable", cfg.BufferEnable, gpiod.AsOutput(High)); err == nil {
				vint, err = request("power good", cfg.PowerGood, gpiod.AsInput)
			}
		}
	}
	if err != nil {
		return nil, errors.Join(err, p.Close())
	}

	p.PinSet = PinSet{Power: power, Reset: reset, BufferEnable: bufen, PowerGood: vint}
	return p, nil
}

// Close releases the lines and the chip.
func (p *ChipPins) Close() error {
	var errs []error
	for _, l := range p.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close line: %w", err))
		}
	}
	p.lines = nil
	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close chip: %w", err))
		}
		p.chip = nil
	}
	return errors.Join(errs...)
}
