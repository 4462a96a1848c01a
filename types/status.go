package types

import "strings"

// TestStatus represents the possible outcomes of a test execution
type TestStatus string

const (
	TestStatusInconclusive TestStatus = "inconclusive"
	TestStatusSkip         TestStatus = "skip"
	TestStatusPass         TestStatus = "pass"
	TestStatusWarning      TestStatus = "warning"
	TestStatusFail         TestStatus = "fail"
)

// FailureSite indicates the stage of execution where a failure occurred
type FailureSite string

const (
	SiteTest     FailureSite = "test"
	SiteSetUp    FailureSite = "setup"
	SiteTearDown FailureSite = "teardown"
	SiteParent   FailureSite = "parent"
	SiteChild    FailureSite = "child"
)

// Labels refining a status
const (
	LabelIgnored   = "ignored"
	LabelExplicit  = "explicit"
	LabelError     = "error"
	LabelCancelled = "cancelled"
	LabelInvalid   = "invalid"
)

// ResultState combines a status with an optional label and the site of the failure
type ResultState struct {
	Status TestStatus
	Label  string
	Site   FailureSite
}

var (
	StateInconclusive = ResultState{Status: TestStatusInconclusive, Site: SiteTest}
	StateSkipped      = ResultState{Status: TestStatusSkip, Site: SiteTest}
	StateIgnored      = ResultState{Status: TestStatusSkip, Label: LabelIgnored, Site: SiteTest}
	StateExplicit     = ResultState{Status: TestStatusSkip, Label: LabelExplicit, Site: SiteTest}
	StateSuccess      = ResultState{Status: TestStatusPass, Site: SiteTest}
	StateWarning      = ResultState{Status: TestStatusWarning, Site: SiteTest}
	StateFailure      = ResultState{Status: TestStatusFail, Site: SiteTest}
	StateError        = ResultState{Status: TestStatusFail, Label: LabelError, Site: SiteTest}
	StateCancelled    = ResultState{Status: TestStatusFail, Label: LabelCancelled, Site: SiteTest}
	StateNotRunnable  = ResultState{Status: TestStatusFail, Label: LabelInvalid, Site: SiteTest}

	StateChildFailure  = StateFailure.WithSite(SiteChild)
	StateChildWarning  = StateWarning.WithSite(SiteChild)
	StateChildIgnored  = StateIgnored.WithSite(SiteChild)
	StateSetUpFailure  = StateFailure.WithSite(SiteSetUp)
	StateSetUpError    = StateError.WithSite(SiteSetUp)
	StateTearDownError = StateError.WithSite(SiteTearDown)
)

// WithSite returns a copy of the state attributed to a different site
func (s ResultState) WithSite(site FailureSite) ResultState {
	s.Site = site
	return s
}

// IsCancelled reports whether the state represents a cancelled run
func (s ResultState) IsCancelled() bool {
	return s.Status == TestStatusFail && s.Label == LabelCancelled
}

// String renders the state as status[:label][(site)]
func (s ResultState) String() string {
	var sb strings.Builder
	sb.WriteString(string(s.Status))
	if s.Label != "" {
		sb.WriteString(":")
		sb.WriteString(s.Label)
	}
	if s.Site != "" && s.Site != SiteTest {
		sb.WriteString("(")
		sb.WriteString(string(s.Site))
		sb.WriteString(")")
	}
	return sb.String()
}
