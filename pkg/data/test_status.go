package data

// TestState tracks an in-progress or finished UPS self-test.
type TestState int

// Test states.
const (
	TestStateIdle TestState = iota
	TestStateBatteryQuickRunning
	TestStateBatteryDeepRunning
	TestStateUpsTestRunning
	TestStatePanelTestRunning
	TestStateCompleted
	TestStateFailed
	TestStateAborted
)

// String returns a human-readable state name.
func (s TestState) String() string {
	switch s {
	case TestStateIdle:
		return "Idle"
	case TestStateBatteryQuickRunning:
		return "Battery Quick Test"
	case TestStateBatteryDeepRunning:
		return "Battery Deep Test"
	case TestStateUpsTestRunning:
		return "UPS Self Test"
	case TestStatePanelTestRunning:
		return "Panel Test"
	case TestStateCompleted:
		return "Test Completed"
	case TestStateFailed:
		return "Test Failed"
	case TestStateAborted:
		return "Test Aborted"
	default:
		return "Unknown"
	}
}

// TestType identifies which kind of test was started.
type TestType int

// Test types.
const (
	TestTypeNone TestType = iota
	TestTypeBatteryQuick
	TestTypeBatteryDeep
	TestTypeUpsSelfTest
	TestTypePanelTest
)

// TestResult is a NUT-compatible test outcome.
type TestResult int

// Test results.
const (
	TestResultUnknown TestResult = iota
	TestResultNoTest
	TestResultPassed
	TestResultFailed
	TestResultInProgress
	TestResultNotSupported
	TestResultAborted
	TestResultBatteryGood
	TestResultBatteryBad
	TestResultBatteryReplace
)

// String returns a human-readable result name.
func (r TestResult) String() string {
	switch r {
	case TestResultNoTest:
		return "No test"
	case TestResultPassed:
		return "Passed"
	case TestResultFailed:
		return "Failed"
	case TestResultInProgress:
		return "In progress"
	case TestResultNotSupported:
		return "Not supported"
	case TestResultAborted:
		return "Aborted"
	case TestResultBatteryGood:
		return "Battery good"
	case TestResultBatteryBad:
		return "Battery bad"
	case TestResultBatteryReplace:
		return "Replace battery"
	default:
		return "Unknown"
	}
}

// TestStatus tracks self-test progress, results, and countdown timers.
type TestStatus struct {
	// UpsTestResult is the current test result text.
	UpsTestResult string

	// LastTestResult is the text of the last completed test.
	LastTestResult string

	// Countdown timers in seconds, -1 when not set. Active (>0) timers
	// switch the polling core into fast-poll mode.
	TimerShutdown int
	TimerStart    int
	TimerReboot   int

	CurrentTestState TestState
	CurrentTestType  TestType

	// TestStartMillis and TestDurationMillis track progress of a running test.
	TestStartMillis    int64
	TestDurationMillis int64

	LastBatteryTestResult TestResult
	LastUpsTestResult     TestResult
}

// NewTestStatus returns a TestStatus with all timers unset.
func NewTestStatus() TestStatus {
	return TestStatus{
		TimerShutdown: -1,
		TimerStart:    -1,
		TimerReboot:   -1,
	}
}

// IsRunning reports whether any test is in progress.
func (t *TestStatus) IsRunning() bool {
	switch t.CurrentTestState {
	case TestStateBatteryQuickRunning, TestStateBatteryDeepRunning,
		TestStateUpsTestRunning, TestStatePanelTestRunning:
		return true
	}
	return false
}

// IsBatteryTestRunning reports whether a battery test is in progress.
func (t *TestStatus) IsBatteryTestRunning() bool {
	return t.CurrentTestState == TestStateBatteryQuickRunning ||
		t.CurrentTestState == TestStateBatteryDeepRunning
}

// HasTimers reports whether any countdown timer is set.
func (t *TestStatus) HasTimers() bool {
	return t.TimerShutdown != -1 || t.TimerStart != -1 || t.TimerReboot != -1
}

// HasActiveTimers reports whether any countdown timer is actually counting.
func (t *TestStatus) HasActiveTimers() bool {
	return t.TimerShutdown > 0 || t.TimerStart > 0 || t.TimerReboot > 0
}

// StartTest records the start of a test of the given type.
func (t *TestStatus) StartTest(typ TestType, nowMillis int64) {
	t.CurrentTestType = typ
	t.TestStartMillis = nowMillis
	t.TestDurationMillis = 0

	switch typ {
	case TestTypeBatteryQuick:
		t.CurrentTestState = TestStateBatteryQuickRunning
	case TestTypeBatteryDeep:
		t.CurrentTestState = TestStateBatteryDeepRunning
	case TestTypeUpsSelfTest:
		t.CurrentTestState = TestStateUpsTestRunning
	case TestTypePanelTest:
		t.CurrentTestState = TestStatePanelTestRunning
	default:
		t.CurrentTestState = TestStateIdle
	}
}

// UpdateProgress refreshes the running-test duration.
func (t *TestStatus) UpdateProgress(nowMillis int64) {
	if t.IsRunning() && t.TestStartMillis > 0 {
		t.TestDurationMillis = nowMillis - t.TestStartMillis
	}
}

// CompleteTest records a finished test and files the result under the
// battery or UPS slot depending on the running test type.
func (t *TestStatus) CompleteTest(result TestResult) {
	t.CurrentTestState = TestStateCompleted

	if t.CurrentTestType == TestTypeBatteryQuick || t.CurrentTestType == TestTypeBatteryDeep {
		t.LastBatteryTestResult = result
	} else {
		t.LastUpsTestResult = result
	}

	if t.UpsTestResult != "" {
		t.LastTestResult = t.UpsTestResult
	}
	t.UpsTestResult = result.String()
}

// AbortTest marks the running test aborted.
func (t *TestStatus) AbortTest() {
	t.CurrentTestState = TestStateAborted
	t.UpsTestResult = "Test aborted"
}

// IsValid reports whether any test field has been decoded or set.
func (t *TestStatus) IsValid() bool {
	return t.UpsTestResult != "" || t.LastTestResult != "" || t.IsRunning() || t.HasTimers()
}

// Reset returns all fields to their defaults.
func (t *TestStatus) Reset() {
	*t = NewTestStatus()
}
