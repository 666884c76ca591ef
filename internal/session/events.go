package session

// Op names the operation that produced an Event.
type Op string

const (
	OpLogin         Op = "login"
	OpLogout        Op = "logout"
	OpAccessToken   Op = "access_token"
	OpRefreshToken  Op = "refresh_token"
	OpRefresh       Op = "refresh"
	OpSelectAccount Op = "select_account"
)

// Event notifies subscribers that session state may have changed.
// It is delivered after the operation's writes have completed.
type Event struct {
	Op Op
	// Err is set when the operation failed, e.g. a refresh that forced a logout.
	Err error
}

type listener struct {
	id int
	fn func(Event)
}

// Subscribe registers fn to receive every Event, in registration order. Listeners run synchronously on
// the goroutine that completed the operation and may call back into the Session.
// The returned function removes the listener.
func (s *Session) Subscribe(fn func(Event)) (cancel func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// emit must not be called with mu held.
func (s *Session) emit(ev Event) {
	s.listenersMu.Lock()
	listeners := append([]listener(nil), s.listeners...)
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l.fn(ev)
	}
}
