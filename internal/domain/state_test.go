package domain

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_700_000_000, 0)

func TestLastUserText(t *testing.T) {
	s := &AgentState{}
	_, ok := s.LastUserText()
	assert.False(t, ok)

	s.AppendUser("list my EC2 instances", testNow)
	text, ok := s.LastUserText()
	require.True(t, ok)
	assert.Equal(t, "list my EC2 instances", text)

	s.AppendAssistant("done", testNow)
	_, ok = s.LastUserText()
	assert.False(t, ok, "assistant turn must not count as user text")
}

func TestBindAndClear(t *testing.T) {
	s := &AgentState{ExpiresAt: testNow.Unix() + 100}
	s.Bind(CredentialSummary{ID: "cred-1", Name: "Prod", AccountID: "111122223333", DefaultRegion: "us-west-2"})

	assert.True(t, s.Bound())
	assert.Equal(t, "cred-1", s.Binding.ID())
	assert.Equal(t, int64(1), s.Binding.Version)
	assert.Zero(t, s.ExpiresAt)
	assert.Equal(t, "us-west-2", s.CurrentRegion)

	s.ExpiresAt = testNow.Unix() + 3600
	s.ClearBinding()
	assert.False(t, s.Bound())
	assert.Equal(t, "", s.Binding.ID())
	assert.Equal(t, int64(2), s.Binding.Version)
	assert.Zero(t, s.ExpiresAt)
}

func TestNeedsRefresh(t *testing.T) {
	s := &AgentState{}
	assert.True(t, s.NeedsRefresh(testNow), "absent expiry needs refresh")
	assert.False(t, s.Expired(testNow), "absent expiry is not expired")

	s.ExpiresAt = testNow.Add(299 * time.Second).Unix()
	assert.True(t, s.NeedsRefresh(testNow))
	assert.True(t, s.Expired(testNow))

	s.ExpiresAt = testNow.Add(300 * time.Second).Unix()
	assert.True(t, s.NeedsRefresh(testNow), "exactly at the buffer edge refreshes")

	s.ExpiresAt = testNow.Add(301 * time.Second).Unix()
	assert.False(t, s.NeedsRefresh(testNow))
}

func TestCloneIsolated(t *testing.T) {
	s := AgentState{ToolServerStatus: map[string]string{"platform": ServerConnected}}
	s.AppendUser("hi", testNow)
	s.Bind(CredentialSummary{ID: "a"})

	c := s.Clone()
	c.Messages[0].Content = "changed"
	c.Binding.Summary.ID = "b"
	c.ToolServerStatus["platform"] = ServerError

	assert.Equal(t, "hi", s.Messages[0].Content)
	assert.Equal(t, "a", s.Binding.ID())
	assert.Equal(t, ServerConnected, s.ToolServerStatus["platform"])
}

func TestHasSwitchIntent(t *testing.T) {
	yes := []string{
		"Switch to staging",
		"please CHANGE TO the dev account",
		"use account 2222",
		"use credential prod",
		"use project my-gcp",
		"use subscription foo",
		"try a different account",
		"clear selection",
		"reset credential please",
		"switch account",
		"change account",
	}
	for _, u := range yes {
		assert.True(t, HasSwitchIntent(u), u)
	}
	no := []string{"list my buckets", "what changed today?", "switch off the lights"}
	for _, u := range no {
		assert.False(t, HasSwitchIntent(u), u)
	}
}

// opBind, opClear and opMessage drive random binding histories.
const (
	opBind = iota
	opClear
	opMessage
)

func applyOp(s *AgentState, op int) {
	switch op {
	case opBind:
		s.Bind(CredentialSummary{ID: "cred", Name: "N"})
		s.ExpiresAt = testNow.Unix() + 3600
	case opClear:
		s.ClearBinding()
	default:
		s.AppendUser("msg", testNow)
	}
}

func TestBindingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("selection version never decreases and bumps on bind/clear", prop.ForAll(
		func(ops []int) bool {
			s := &AgentState{}
			for _, op := range ops {
				before := s.Binding.Version
				applyOp(s, op)
				switch op {
				case opBind, opClear:
					if s.Binding.Version != before+1 {
						return false
					}
				default:
					if s.Binding.Version != before {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(opBind, opMessage)),
	))

	properties.Property("expiry is zero whenever unbound", prop.ForAll(
		func(ops []int) bool {
			s := &AgentState{}
			for _, op := range ops {
				applyOp(s, op)
				if !s.Bound() && s.ExpiresAt != 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(opBind, opMessage)),
	))

	properties.Property("message history is prefix preserving", prop.ForAll(
		func(ops []int) bool {
			s := &AgentState{}
			for _, op := range ops {
				prev := append([]Message(nil), s.Messages...)
				applyOp(s, op)
				if len(s.Messages) < len(prev) {
					return false
				}
				for i := range prev {
					if prev[i].Content != s.Messages[i].Content || prev[i].Role != s.Messages[i].Role {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(opBind, opMessage)),
	))

	properties.TestingRun(t)
}
