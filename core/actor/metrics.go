package actor

import "github.com/posixpascal/knusperity/core/metrics"

// TreeMetrics instruments a conversation tree. All methods must be safe for
// concurrent use.
type TreeMetrics interface {
	// Message handling
	MessageDuration(eventType string) metrics.Timer
	MessageProcessed(eventType string, success bool)
	MessagePanic(eventType string)

	// Mailbox
	MailboxDepth(tree string, depth int)

	// Invoked effects
	EffectInflight(tree string, count int)
	EffectDuration() metrics.Timer
	EffectCompleted(success bool)
}

type nopTreeMetrics struct{}

func (nopTreeMetrics) MessageDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopTreeMetrics) MessageProcessed(string, bool)        {}
func (nopTreeMetrics) MessagePanic(string)                  {}

func (nopTreeMetrics) MailboxDepth(string, int) {}

func (nopTreeMetrics) EffectInflight(string, int)        {}
func (nopTreeMetrics) EffectDuration() metrics.Timer     { return metrics.NopTimer() }
func (nopTreeMetrics) EffectCompleted(bool)              {}

// NopTreeMetrics returns a no-op TreeMetrics implementation.
func NopTreeMetrics() TreeMetrics { return nopTreeMetrics{} }
