package analytics

import (
	"context"

	"triviakit/core"
)

// Source is the part of the event bus hooks listen to.
type Source interface {
	SubscribeAll(handler func(context.Context, core.Event)) func()
}

// BridgeHook bridges an event source to multiple hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// Attach feeds every event from src into the bridge.
func (b *BridgeHook) Attach(src Source) func() {
	return src.SubscribeAll(func(_ context.Context, e core.Event) { b.OnEvent(e) })
}
