// Package wardentest implements helpers to write unit tests for cogs and
// other bot components.
package wardentest

// TestingT is the minimum required subset of the testing API used in the
// wardentest package. TestingT is implemented both by *testing.T and
// *testing.B.
type TestingT interface {
	Logf(string, ...interface{})
	Errorf(string, ...interface{})
	Fatal(...interface{})
	Helper()
	Fail()
	Failed() bool
	Name() string
	FailNow()
}
