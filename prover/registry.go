package prover

import (
	"context"
	"fmt"

	"zkapp-node/common"

	"golang.org/x/sync/semaphore"
)

// Method is one compiled contract method a proof can be requested for
type Method struct {
	ContractClass string
	Name          string
	Client        Client
}

func methodKey(contractClass, name string) string {
	return contractClass + "." + name
}

// Registry maps compiled contract methods to their proof clients. It is
// populated at startup; lookups of unknown entries are configuration errors.
type Registry struct {
	methods map[string]Method
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]Method)}
}

// Register adds a compiled method, replacing any previous registration
func (r *Registry) Register(m Method) {
	r.methods[methodKey(m.ContractClass, m.Name)] = m
}

// Lookup resolves a compiled method. A method name the registry has never
// seen fails with ErrUnknownMethod; a known method with no client fails with
// ErrMissingProver.
func (r *Registry) Lookup(contractClass, name string) (Method, error) {
	m, ok := r.methods[methodKey(contractClass, name)]
	if !ok {
		return Method{}, common.Wrap(fmt.Errorf("%w: %s.%s",
			common.ErrUnknownMethod, contractClass, name))
	}
	if m.Client == nil {
		return Method{}, common.Wrap(fmt.Errorf("%w for method %s.%s",
			common.ErrMissingProver, contractClass, name))
	}
	return m, nil
}

// Session serializes access to the proving engine. The engine keeps ambient
// mutable state (the current memoization context and blinding value) that a
// second concurrent proof would corrupt, so each proof must hold the session
// from input submission until the artifact is collected.
type Session struct {
	sem *semaphore.Weighted
}

// NewSession returns a session admitting one proof at a time
func NewSession() *Session {
	return &Session{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the session is free
func (s *Session) Acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return common.Wrap(common.ErrDone)
	}
	return nil
}

// Release frees the session for the next proof
func (s *Session) Release() {
	s.sem.Release(1)
}
