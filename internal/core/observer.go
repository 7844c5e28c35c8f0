package core

// Observer receives hub activity, typically to feed metrics.
// Implementations must be safe for concurrent use and must not call back into the hub.
type Observer interface {
	SessionOpened()
	SessionClosed()
	ChannelCreated()
	ChannelRemoved()
	Delivered(n int)
	Dropped()
	Dispatched(kind string)
}

type nopObserver struct{}

func (nopObserver) SessionOpened()    {}
func (nopObserver) SessionClosed()    {}
func (nopObserver) ChannelCreated()   {}
func (nopObserver) ChannelRemoved()   {}
func (nopObserver) Delivered(int)     {}
func (nopObserver) Dropped()          {}
func (nopObserver) Dispatched(string) {}
