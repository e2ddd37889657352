/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// CompositeUnit represents a composition of service units, e.g. the HTTP server and the state sweeper.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{units}
}

// Start launches all units concurrently and blocks until all their Start calls return.
// If any unit fails, all units are stopped non-gracefully,
// and the joined errors (including the stop ones) are sent to the passed channel.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		errs     []error
		stopOnce sync.Once
	)
	wg.Add(len(cu.Units))
	for _, u := range cu.Units {
		go func(u Unit) {
			defer wg.Done()
			unitErr := make(chan error, 1)
			u.Start(unitErr)
			select {
			case err := <-unitErr:
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				stopOnce.Do(func() {
					if stopErr := cu.Stop(false); stopErr != nil {
						mu.Lock()
						errs = append(errs, stopErr)
						mu.Unlock()
					}
				})
			default:
			}
		}(u)
	}
	wg.Wait()

	if len(errs) != 0 {
		fatalError <- errors.Join(errs...)
	}
}

// Stop stops all units concurrently and returns the joined errors.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	errs := make([]error, len(cu.Units))
	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for i := range cu.Units {
		go func(i int) {
			defer wg.Done()
			errs[i] = cu.Units[i].Stop(gracefully)
		}(i)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// MustRegisterMetrics registers metrics of all units.
func (cu *CompositeUnit) MustRegisterMetrics(reg prometheus.Registerer) {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics(reg)
		}
	}
}

// UnregisterMetrics unregisters metrics of all units.
func (cu *CompositeUnit) UnregisterMetrics(reg prometheus.Registerer) {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics(reg)
		}
	}
}
