package errors

import (
	"errors"
)

// Common errors.
var (
	ErrDiscoverySetup         = errors.New("discovery listener setup failed")
	ErrCameraClosed           = errors.New("camera control channel is closed")
	ErrPresetGroupRejected    = errors.New("camera rejected video preset group")
	ErrCommandTimeout         = errors.New("camera command timed out")
	ErrInventoryInconsistency = errors.New("camera reported media after the session but has no baseline inventory")
	ErrSessionNotIdle         = errors.New("session has already been armed")
	ErrSessionNotArmed        = errors.New("session is not armed")
	ErrSessionNotRecording    = errors.New("session is not recording")
)
