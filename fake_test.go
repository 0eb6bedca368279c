package perfcollect

import (
	"fmt"
)

// fakeLibrary stands in for the counter hardware. Every event reads the
// value configured for its name.
type fakeLibrary struct {
	initErr   error
	threadErr error
	createErr error
	readErr   error
	reject    map[string]bool
	values    map[string]int64

	threadInits int
	creates     int
	set         *fakeEventSet
}

func (l *fakeLibrary) Init() error {
	return l.initErr
}

func (l *fakeLibrary) ThreadInit() error {
	l.threadInits++
	return l.threadErr
}

func (l *fakeLibrary) CreateEventSet() (EventSet, error) {
	l.creates++
	if l.createErr != nil {
		return nil, l.createErr
	}
	l.set = &fakeEventSet{lib: l}
	return l.set, nil
}

type fakeEventSet struct {
	lib     *fakeLibrary
	names   []string
	started bool
	stopped bool
	stops   int
}

func (s *fakeEventSet) AddNamed(name string) error {
	if s.lib.reject[name] {
		return fmt.Errorf("not found: event %s", name)
	}
	s.names = append(s.names, name)
	return nil
}

func (s *fakeEventSet) Start() error {
	s.started = true
	return nil
}

func (s *fakeEventSet) NumEvents() int {
	return len(s.names)
}

func (s *fakeEventSet) Stop() ([]int64, error) {
	s.stops++
	if s.stopped {
		return nil, ErrNotCounting
	}
	s.stopped = true
	values := make([]int64, len(s.names))
	for i, name := range s.names {
		values[i] = s.lib.values[name]
	}
	return values, s.lib.readErr
}

func (s *fakeEventSet) Names() ([]string, error) {
	return append([]string(nil), s.names...), nil
}
