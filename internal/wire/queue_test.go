package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	var got []string
	q := NewQueue(func(from string, msg Message) {
		got = append(got, msg.Descriptor)
	})
	q.Append("a", Message{Descriptor: "one"})
	q.Append("a", Message{Descriptor: "two"})
	q.Append("a", Message{Descriptor: "three"})
	assert.Equal(t, []string{"one", "two", "three"}, got)
	assert.Equal(t, 0, q.Len())
}

func TestQueueHoldGate(t *testing.T) {
	var got []string
	q := NewQueue(func(from string, msg Message) {
		got = append(got, msg.Descriptor)
	})

	q.Hold()
	q.Append("a", Message{Descriptor: "one"})
	q.Append("a", Message{Descriptor: "two"})
	assert.Empty(t, got, "gate must defer delivery")
	assert.Equal(t, 2, q.Len())

	q.Release()
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestQueueHandlerAppendDoesNotReenter(t *testing.T) {
	var q *Queue[string]
	depth, maxDepth := 0, 0
	var got []string
	q = NewQueue(func(from string, msg Message) {
		depth++
		if depth > maxDepth {
			maxDepth = depth
		}
		got = append(got, msg.Descriptor)
		if msg.Descriptor == "first" {
			q.Append("a", Message{Descriptor: "nested"})
		}
		depth--
	})
	q.Append("a", Message{Descriptor: "first"})

	assert.Equal(t, []string{"first", "nested"}, got)
	assert.Equal(t, 1, maxDepth, "handler must never run inside itself")
}

func TestQueueHoldInsideHandler(t *testing.T) {
	var q *Queue[string]
	var got []string
	q = NewQueue(func(from string, msg Message) {
		got = append(got, msg.Descriptor)
		if msg.Descriptor == "slow" {
			q.Hold()
		}
	})
	q.Append("a", Message{Descriptor: "slow"})
	q.Append("a", Message{Descriptor: "next"})
	assert.Equal(t, []string{"slow"}, got, "gate set mid-handler stops the drain")

	q.Release()
	assert.Equal(t, []string{"slow", "next"}, got)
}
