// Package registrar runs test setup functions and records which assertions
// watch which streams.
//
// Register processes tests in order: the test's notification targets are
// bound first, then its setup function runs once, synchronously. Each
// assertion handed to a Binder is wrapped in a Tester, an observer that turns
// a false result into a failure payload and a returned error or panic into an
// error payload. Nothing raised by an assertion escapes its Tester.
package registrar
