// File: internal/concurrency/runner.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// AgentRunner owns the goroutine of a duty-cycled agent: start with a
// CAS guard, loop until stopped, close the agent from its own
// goroutine so sessions are only ever touched from one thread.

package concurrency

import (
	"sync"
	"sync/atomic"
	"time"
)

// Agent is a unit of work driven by repeated DoWork passes. OnClose is
// invoked once, on the runner goroutine, after the final pass.
type Agent interface {
	RoleName() string
	DoWork() int
	OnClose()
}

// AgentRunner drives one Agent on a dedicated goroutine.
//
// OnStart, when set before Start, runs once on the duty cycle
// goroutine before the first pass. Thread setup such as CPU pinning
// belongs there.
type AgentRunner struct {
	agent    Agent
	idler    IdleStrategy
	running  atomic.Int32
	stopped  atomic.Int32
	stopCh   chan struct{}
	stopOnce sync.Once

	OnStart func()
}

// NewAgentRunner creates a runner for agent using the given idle
// strategy. A nil idler defaults to backoff.
func NewAgentRunner(agent Agent, idler IdleStrategy) *AgentRunner {
	if idler == nil {
		idler = NewBackoffIdleStrategy()
	}
	return &AgentRunner{
		agent:  agent,
		idler:  idler,
		stopCh: make(chan struct{}),
	}
}

// Start launches the duty cycle goroutine. Subsequent calls are no-ops.
func (r *AgentRunner) Start() {
	if !r.running.CompareAndSwap(0, 1) {
		return
	}
	go r.run()
}

func (r *AgentRunner) run() {
	defer func() {
		r.agent.OnClose()
		r.stopped.Store(1)
	}()
	if r.OnStart != nil {
		r.OnStart()
	}
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}
		r.idler.Idle(r.agent.DoWork())
	}
}

// Stop signals the duty cycle to exit and waits until the agent has
// been closed. Safe to call more than once; a runner that was never
// started is closed synchronously.
func (r *AgentRunner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if r.running.Load() == 0 {
		if r.stopped.CompareAndSwap(0, 1) {
			r.agent.OnClose()
		}
		return
	}
	for r.stopped.Load() == 0 {
		time.Sleep(time.Microsecond)
	}
}

// CompositeAgent composes several agents into one duty cycle, invoked
// in order. OnClose closes the agents in reverse order.
type CompositeAgent struct {
	roleName string
	agents   []Agent
}

// NewCompositeAgent builds a composite with the given role name.
func NewCompositeAgent(roleName string, agents ...Agent) *CompositeAgent {
	return &CompositeAgent{roleName: roleName, agents: agents}
}

// RoleName returns the composite role name.
func (c *CompositeAgent) RoleName() string { return c.roleName }

// DoWork runs one pass of every agent and sums the work counts.
func (c *CompositeAgent) DoWork() int {
	work := 0
	for _, a := range c.agents {
		work += a.DoWork()
	}
	return work
}

// OnClose closes all agents in reverse registration order.
func (c *CompositeAgent) OnClose() {
	for i := len(c.agents) - 1; i >= 0; i-- {
		c.agents[i].OnClose()
	}
}
