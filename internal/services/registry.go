package services

import (
	"github.com/fyrsmithlabs/trackd/internal/coordinator"
	"github.com/fyrsmithlabs/trackd/internal/executor"
	"github.com/fyrsmithlabs/trackd/internal/routing"
	"github.com/fyrsmithlabs/trackd/internal/store"
)

// Registry provides access to all trackd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Coordinator() coordinator.Service
	Store() store.Store
	Router() *routing.Router
	Executors() *executor.Directory
}

// Options configures the registry with service instances.
type Options struct {
	Coordinator coordinator.Service
	Store       store.Store
	Router      *routing.Router
	Executors   *executor.Directory
}

// registry is the concrete implementation of Registry.
type registry struct {
	coordinator coordinator.Service
	store       store.Store
	router      *routing.Router
	executors   *executor.Directory
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		coordinator: opts.Coordinator,
		store:       opts.Store,
		router:      opts.Router,
		executors:   opts.Executors,
	}
}

func (r *registry) Coordinator() coordinator.Service { return r.coordinator }
func (r *registry) Store() store.Store               { return r.store }
func (r *registry) Router() *routing.Router          { return r.router }
func (r *registry) Executors() *executor.Directory   { return r.executors }
