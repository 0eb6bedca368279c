package perfcollect

// A Session owns the single event set of a process between Start and Stop.
type Session struct {
	set  EventSet
	diag *Diagnostics

	tokens []string
	// slots maps each registered event to its position in tokens.
	slots []int
}

// StartSession initializes lib, registers every event of spec and starts
// counting. Failures are reported to diag and never abort the session: an
// event that can not be registered is skipped and the remaining ones are
// still attempted. The returned session is never nil; if no event set could
// be created every event reads zero.
func StartSession(lib Library, spec string, diag *Diagnostics) *Session {
	s := &Session{diag: diag}

	names := ParseEventSpec(spec)
	s.tokens = names
	if len(names) == 0 {
		diag.Check("read event specification", ErrNoEvents)
		return s
	}

	if !diag.Check("init counter library", lib.Init()) {
		return s
	}
	diag.Check("init thread support", lib.ThreadInit())

	set, err := lib.CreateEventSet()
	if !diag.Check("create event set", err) {
		return s
	}
	s.set = set

	for i, name := range names {
		if diag.Check("add event "+name, set.AddNamed(name)) {
			s.slots = append(s.slots, i)
		}
	}
	diag.Check("start counters", set.Start())
	return s
}

// NumEvents returns the number of registered events.
func (s *Session) NumEvents() int {
	if s.set == nil {
		return 0
	}
	return s.set.NumEvents()
}

// Width returns the number of events requested, registered or not.
func (s *Session) Width() int {
	return len(s.tokens)
}

// Stop stops counting and returns the counter vector: one value per
// requested event, in request order. Events that were not registered or
// could not be read count zero.
func (s *Session) Stop() []int64 {
	if s.NumEvents() <= 0 {
		s.diag.Check("count events", ErrNoCounters)
	}
	values := make([]int64, len(s.tokens))
	if s.set == nil {
		return values
	}
	read, err := s.set.Stop()
	s.diag.Check("stop counters", err)
	for i, slot := range s.slots {
		if i < len(read) {
			values[slot] = read[i]
		}
	}
	return values
}

// Names returns the requested event names, in counter vector order.
func (s *Session) Names() []string {
	return append([]string(nil), s.tokens...)
}

// Registered returns the names of the events actually counted.
func (s *Session) Registered() []string {
	if s.set == nil {
		return nil
	}
	names, err := s.set.Names()
	if !s.diag.Check("list events", err) {
		return nil
	}
	return names
}
