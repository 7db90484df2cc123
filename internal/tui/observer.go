package tui

import "github.com/tallydash/tally/internal/domain"

// ChannelObserver adapts domain.LoadObserver to a channel for Bubble Tea.
type ChannelObserver struct {
	ch   chan<- domain.LoadProgress
	done <-chan struct{}
}

// NewChannelObserver creates a new channel-based observer. Closing done
// releases a sender blocked on a terminal signal.
func NewChannelObserver(ch chan<- domain.LoadProgress, done <-chan struct{}) *ChannelObserver {
	return &ChannelObserver{ch: ch, done: done}
}

// OnProgress sends progress to the channel. Progress updates are dropped
// when the channel is full; terminal signals wait for the reader.
func (o *ChannelObserver) OnProgress(progress domain.LoadProgress) {
	if progress.Terminal() {
		select {
		case o.ch <- progress:
		case <-o.done:
		}
		return
	}
	select {
	case o.ch <- progress:
	default:
	}
}
