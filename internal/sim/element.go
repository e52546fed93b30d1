package sim

import "errors"

// Element records the calls the manager makes on it.
type Element struct {
	Card    string
	Token   uint64
	Steps   []string
	Playing bool
	// FailStep makes the named destruction step return an error.
	FailStep string

	host *Host
}

var errStep = errors.New("scripted step failure")

func (e *Element) record(step string) error {
	e.Steps = append(e.Steps, step)
	if step == e.FailStep {
		return errStep
	}
	return nil
}

func (e *Element) Halt() error {
	e.Playing = false
	return e.record("halt")
}

func (e *Element) ReleaseTracks() error { return e.record("release tracks") }
func (e *Element) ClearSource() error   { return e.record("clear source") }
func (e *Element) Detach() error        { return e.record("detach") }

// ClearAttributes is the last step; the host stops counting the element.
func (e *Element) ClearAttributes() error {
	if e.host != nil {
		if _, ok := e.host.elements[e.Token]; ok {
			delete(e.host.elements, e.Token)
			e.host.Released++
		}
	}
	return e.record("clear attributes")
}

func (e *Element) Play() error {
	e.Playing = true
	return nil
}

func (e *Element) Pause() error {
	e.Playing = false
	return nil
}
