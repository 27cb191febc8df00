package device

// UnavailableEyeTracker stands in when no eye-tracker driver is linked in.
// Calibration fails, so a session that asked for eye tracking stops
// before the first trial instead of running unrecorded.
type UnavailableEyeTracker struct {
	Reason string
}

func (u UnavailableEyeTracker) fail() Result {
	if u.Reason == "" {
		return Fail("no eye-tracker driver available")
	}
	return Fail(u.Reason)
}

func (u UnavailableEyeTracker) Calibrate() Result { return u.fail() }
func (u UnavailableEyeTracker) StartRecording() Result { return u.fail() }
func (u UnavailableEyeTracker) StopRecording() Result { return u.fail() }
func (u UnavailableEyeTracker) Message(string) Result { return u.fail() }
func (u UnavailableEyeTracker) Retrieve(string) Result { return u.fail() }
func (u UnavailableEyeTracker) Close() error { return nil }
