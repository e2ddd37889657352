/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest contains loggers for tests: a JSON logger writing to an arbitrary
// writer and a Recorder that keeps entries in memory so they can be asserted on.
package logtest
