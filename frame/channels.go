package frame

import "fmt"

// Channels describes how a frame's subframes combine into output channels,
// per RFC 9639 §9.1.4. Codes 0..7 are independent channels (count =
// code+1); codes 8..10 are the inter-channel decorrelation modes; 11..15
// are reserved.
type Channels uint8

const (
	// ChannelsIndependent1 through ChannelsIndependent8 carry NChannels
	// independently coded subframes, no decorrelation.
	ChannelsIndependent1 Channels = iota
	ChannelsIndependent2
	ChannelsIndependent3
	ChannelsIndependent4
	ChannelsIndependent5
	ChannelsIndependent6
	ChannelsIndependent7
	ChannelsIndependent8
	// ChannelsLeftSide carries (left, side) subframes; side = left - right.
	ChannelsLeftSide
	// ChannelsRightSide carries (side, right) subframes; side = left - right.
	ChannelsRightSide
	// ChannelsMidSide carries (mid, side) subframes.
	ChannelsMidSide
)

// Count returns the number of output channels implied by the assignment.
func (c Channels) Count() int {
	switch {
	case c <= ChannelsIndependent8:
		return int(c) + 1
	case c == ChannelsLeftSide || c == ChannelsRightSide || c == ChannelsMidSide:
		return 2
	default:
		return 0
	}
}

// IsStereoDecorrelated reports whether this assignment requires the
// left/right reconstruction step (spec §4.10 "Channel de-correlation").
func (c Channels) IsStereoDecorrelated() bool {
	return c == ChannelsLeftSide || c == ChannelsRightSide || c == ChannelsMidSide
}

func parseChannels(code uint8) (Channels, error) {
	if code <= 10 {
		return Channels(code), nil
	}
	return 0, fmt.Errorf("frame.parseChannels: reserved channel assignment code %d", code)
}

func (c Channels) String() string {
	switch {
	case c <= ChannelsIndependent8:
		return fmt.Sprintf("%d independent channel(s)", c.Count())
	case c == ChannelsLeftSide:
		return "left/side"
	case c == ChannelsRightSide:
		return "right/side"
	case c == ChannelsMidSide:
		return "mid/side"
	default:
		return "reserved"
	}
}
