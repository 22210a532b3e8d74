// Package domain holds the notification entities shared by the dispatch
// orchestrator, the channel senders and the persistence layer.
package domain

import (
	"fmt"
	"strings"
)

// Channel is a single delivery channel. Channels is a set of them.
type Channel uint8

// Delivery channels. Values are stable: they are stored and exchanged as a bitset.
const (
	ChannelInApp Channel = 1 << iota
	ChannelEmail
	ChannelPush
	ChannelSMS
)

// Channels is a bitset of delivery channels.
type Channels uint8

const (
	ChannelsNone Channels = 0
	ChannelsAll  Channels = Channels(ChannelInApp | ChannelEmail | ChannelPush | ChannelSMS)
)

// OrderedChannels lists channels in dispatch/report order.
var OrderedChannels = []Channel{ChannelInApp, ChannelEmail, ChannelPush, ChannelSMS}

// String returns the wire name of the channel.
func (c Channel) String() string {
	switch c {
	case ChannelInApp:
		return "in_app"
	case ChannelEmail:
		return "email"
	case ChannelPush:
		return "push"
	case ChannelSMS:
		return "sms"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// ParseChannel maps a wire name to a Channel.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in_app", "inapp":
		return ChannelInApp, nil
	case "email":
		return ChannelEmail, nil
	case "push":
		return ChannelPush, nil
	case "sms":
		return ChannelSMS, nil
	default:
		return 0, fmt.Errorf("unknown channel %q", s)
	}
}

// NewChannels builds a set from individual channels.
func NewChannels(cs ...Channel) Channels {
	var out Channels
	for _, c := range cs {
		out |= Channels(c)
	}
	return out
}

// ParseChannels parses a list of wire names. An empty list means ChannelsAll.
func ParseChannels(names []string) (Channels, error) {
	if len(names) == 0 {
		return ChannelsAll, nil
	}
	var out Channels
	for _, name := range names {
		c, err := ParseChannel(name)
		if err != nil {
			return ChannelsNone, err
		}
		out |= Channels(c)
	}
	return out, nil
}

// Has reports whether c is in the set.
func (cs Channels) Has(c Channel) bool {
	return cs&Channels(c) != 0
}

// List returns the members in dispatch order.
func (cs Channels) List() []Channel {
	out := make([]Channel, 0, len(OrderedChannels))
	for _, c := range OrderedChannels {
		if cs.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Names returns the wire names of the members.
func (cs Channels) Names() []string {
	list := cs.List()
	out := make([]string, len(list))
	for i, c := range list {
		out[i] = c.String()
	}
	return out
}
