package hal

import "sync"

// FakePin is an in-memory Pin. It records every level written and can be
// wired to react to writes, which lets tests model the modem's response
// to power and reset pulses.
type FakePin struct {
	mu      sync.Mutex
	value   int
	history []int
	onSet   func(value int)
	err     error
}

// NewFakePin creates a FakePin at level.
func NewFakePin(level int) *FakePin {
	return &FakePin{value: level}
}

func (p *FakePin) Value() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	return p.value, nil
}

func (p *FakePin) SetValue(value int) error {
	p.mu.Lock()
	if p.err != nil {
		err := p.err
		p.mu.Unlock()
		return err
	}
	p.value = value
	p.history = append(p.history, value)
	hook := p.onSet
	p.mu.Unlock()

	if hook != nil {
		hook(value)
	}
	return nil
}

// Set changes the level without recording it, as the device side would.
func (p *FakePin) Set(value int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value = value
}

// History returns the levels written through SetValue.
func (p *FakePin) History() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.history...)
}

// OnSet installs a hook run after every SetValue.
func (p *FakePin) OnSet(hook func(value int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSet = hook
}

// Fail makes every access return err; nil restores normal operation.
func (p *FakePin) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}
