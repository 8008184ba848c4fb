package portal

import "errors"

var (
	// ErrNoPortal is returned when no portal base URL is configured.
	ErrNoPortal = errors.New("portal URL not configured")
	// ErrNoToken means the handshake response carried no token.
	ErrNoToken = errors.New("no token received from handshake")
	// ErrInvalidResponse means the channel list body was not a JSON object or list.
	ErrInvalidResponse = errors.New("portal returned invalid response")
	// ErrNoCommand means the channel has no cmd to resolve.
	ErrNoCommand = errors.New("no cmd available for channel")
	// ErrChannelIndex means a channel index is outside the catalog.
	ErrChannelIndex = errors.New("invalid channel id")
)
