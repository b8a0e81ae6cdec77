// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

// Package services manages the lifecycle of the node's long-running
// components. Services start in registration order and stop in reverse,
// so a service may depend on everything registered before it.
package services

import (
	"reflect"

	log "github.com/ChainSafe/log15"
)

var logger = log.New("pkg", "services")

// Service must be implemented by all services
type Service interface {
	Start() error
	Stop() error
}

// Registry is a structure to manage core system services
type Registry struct {
	services     map[reflect.Type]Service
	serviceTypes []reflect.Type
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[reflect.Type]Service),
	}
}

// RegisterService stores a new service in the map. Registering a second
// service of the same type is ignored.
func (r *Registry) RegisterService(service Service) {
	kind := reflect.TypeOf(service)
	if _, exists := r.services[kind]; exists {
		logger.Warn("tried to add service type that has already been seen", "type", kind)
		return
	}
	r.services[kind] = service
	r.serviceTypes = append(r.serviceTypes, kind)
}

// StartAll calls Start for all registered services in registration order
func (r *Registry) StartAll() {
	logger.Info("starting services", "services", r.serviceTypes)
	for _, typ := range r.serviceTypes {
		logger.Debug("starting service", "type", typ)
		if err := r.services[typ].Start(); err != nil {
			logger.Error("cannot start service", "type", typ, "error", err)
		}
	}
	logger.Debug("all services started")
}

// StopAll calls Stop for all registered services in reverse registration
// order, so dependencies outlive their dependents
func (r *Registry) StopAll() {
	logger.Info("stopping services", "services", r.serviceTypes)
	for i := len(r.serviceTypes) - 1; i >= 0; i-- {
		typ := r.serviceTypes[i]
		logger.Debug("stopping service", "type", typ)
		if err := r.services[typ].Stop(); err != nil {
			logger.Error("error stopping service", "type", typ, "error", err)
		}
	}
	logger.Debug("all services stopped")
}

// Get retrieves the registered service with the same type as srvc,
// or nil if no such service is registered
func (r *Registry) Get(srvc interface{}) Service {
	if reflect.TypeOf(srvc).Kind() != reflect.Ptr {
		logger.Warn("expected a pointer", "got", reflect.TypeOf(srvc))
		return nil
	}

	if s, ok := r.services[reflect.TypeOf(srvc)]; ok {
		return s
	}
	logger.Warn("unknown service type", "type", reflect.TypeOf(srvc))
	return nil
}
