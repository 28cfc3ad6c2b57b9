package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/thomas/storefront-terminal-go/internal/cartstate"
)

// Subscriber is the part of *cartstate.Store the bridge needs.
type Subscriber interface {
	Subscribe(cartstate.Subscriber) cartstate.SubscriptionID
	Unsubscribe(cartstate.SubscriptionID)
}

// Bridge forwards store snapshots to a Bubble Tea program. Only the latest
// snapshot is kept: a slow program skips intermediate frames but never
// blocks the store.
//
// The store notifies every transition in order, but that guarantee ends at
// the bridge. A program that falls behind may never see a pending=true frame
// whose intent has already settled. Subscribe to the store directly, as
// render.Mount does, when every frame matters.
type Bridge struct {
	store Subscriber
	id    cartstate.SubscriptionID
	ch    chan cartstate.Snapshot
}

// NewBridge subscribes to store.
func NewBridge(store Subscriber) *Bridge {
	b := &Bridge{store: store, ch: make(chan cartstate.Snapshot, 1)}
	b.id = store.Subscribe(b.push)
	return b
}

// push runs on the store goroutine, the only sender.
func (b *Bridge) push(s cartstate.Snapshot) {
	select {
	case b.ch <- s:
		return
	default:
	}
	select {
	case <-b.ch:
	default:
	}
	b.ch <- s
}

// Updates returns the channel snapshots arrive on.
func (b *Bridge) Updates() <-chan cartstate.Snapshot {
	return b.ch
}

// Close unsubscribes from the store.
func (b *Bridge) Close() {
	b.store.Unsubscribe(b.id)
}

type snapshotMsg cartstate.Snapshot

// waitForSnapshot blocks until the next snapshot arrives.
func waitForSnapshot(ch <-chan cartstate.Snapshot) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}
