/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package api contains HTTP handlers of the rate limiting service.
//
// Routes:
//
//	GET    /test/{policy}          checks the client against a registered policy
//	POST   /custom                 registers a custom policy and checks the client against it
//	GET    /policies               lists registered policies
//	DELETE /clients/{identifier}   drops the state of the client under every policy
package api
