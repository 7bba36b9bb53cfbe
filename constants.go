package ulogger

import "github.com/adarwoo/ulogger/internal/constants"

// Re-exported protocol and policy constants for the public API.
const (
	Sentinel                       = constants.Sentinel
	ReservedOverrunID16            = constants.ReservedOverrunID16
	ReservedStartID16              = constants.ReservedStartID16
	ReservedOverrunID8             = constants.ReservedOverrunID8
	ReservedStartID8               = constants.ReservedStartID8
	DefaultPollInterval            = constants.DefaultPollInterval
	DefaultReadTimeout             = constants.DefaultReadTimeout
	DefaultReopenBackoff           = constants.DefaultReopenBackoff
	DefaultMaxReopenAttempts       = constants.DefaultMaxReopenAttempts
	DefaultRingBufferCapacity      = constants.DefaultRingBufferCapacity
	DefaultDispatchChannelCapacity = constants.DefaultDispatchChannelCapacity
	DefaultDisplayLevelThreshold   = constants.DefaultDisplayLevelThreshold
	DefaultUIRedrawHz              = constants.DefaultUIRedrawHz
	MaxFrameSize                   = constants.MaxFrameSize
)
