//go:build !linux && !darwin

package reactor

// NewPoller returns ErrUnsupportedPlatform; supply a Poller via WithContext.
func NewPoller() (Poller, error) {
	return nil, ErrUnsupportedPlatform
}
