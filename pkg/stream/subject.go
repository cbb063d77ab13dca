package stream

// Subject multicasts one stream to many observers. Observers are invoked
// sequentially, in subscription order, on the goroutine that pushes into the
// Subject.
//
// Subject is not safe for concurrent use: all Subscribe calls must happen
// before the first element is pushed, and a single goroutine pushes.
type Subject struct {
	observers []Observer
}

// NewSubject returns an empty Subject.
func NewSubject() *Subject {
	return &Subject{}
}

// Subscribe appends obs to the fan-out list.
func (s *Subject) Subscribe(obs Observer) {
	s.observers = append(s.observers, obs)
}

// Len returns the number of subscribed observers.
func (s *Subject) Len() int { return len(s.observers) }

func (s *Subject) OnNext(element any) {
	for _, o := range s.observers {
		o.OnNext(element)
	}
}

func (s *Subject) OnError(err error) {
	for _, o := range s.observers {
		o.OnError(err)
	}
}

func (s *Subject) OnCompleted() {
	for _, o := range s.observers {
		o.OnCompleted()
	}
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are no-ops.
type ObserverFuncs struct {
	Next      func(element any)
	Error     func(err error)
	Completed func()
}

func (f ObserverFuncs) OnNext(element any) {
	if f.Next != nil {
		f.Next(element)
	}
}

func (f ObserverFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f ObserverFuncs) OnCompleted() {
	if f.Completed != nil {
		f.Completed()
	}
}
