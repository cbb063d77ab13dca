// Package check is the authoring API for streamwatch tests.
//
// A test is a named setup function plus the integration aliases notified when
// any of its assertions fail:
//
//	var Tests = []*check.Test{
//		check.Define("check_positive", func(s check.Scope) {
//			s.Expect(readings)(check.That("is positive", func(e any) bool {
//				return e.(int) > 0
//			}))
//		}).OnFailure("term"),
//	}
//
// The setup function runs exactly once at startup. Expect binds assertions to a
// stream; elements are then checked for the lifetime of the process.
package check
