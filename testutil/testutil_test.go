/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import "errors"

var errBoom = errors.New("boom")

// MockT records failures instead of stopping the test.
type MockT struct {
	Failed bool
	Format string
	Args   []interface{}
}

func (t *MockT) FailNow() {
	t.Failed = true
}

func (t *MockT) Errorf(format string, args ...interface{}) {
	t.Failed = true
	t.Format, t.Args = format, args
}
