package condwave

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/vallen-systems/go-waveline/wave"
)

// channelSettings is the local mirror of one channel's acquisition settings.
//
// The mirror is updated by the control-command path after every successful
// set command (the protocol is fire-and-forget for setters) and read by the
// record decoders and stream readers to select the correct calibration
// without re-querying the device. Fields are atomic so concurrent stream
// readers never observe torn values; a change during active streaming has no
// effect on already-open streams, which snapshot their scaling at open time.
type channelSettings struct {
	rangeIndex atomic.Int32
	decimation atomic.Int32
}

func newChannelSettings() *channelSettings {
	s := &channelSettings{}
	s.rangeIndex.Store(defaultRangeIndex)
	s.decimation.Store(defaultDecimation)

	return s
}

// settingsFor returns the settings mirror of the given physical channel,
// creating it with defaults on first use.
func (c *Conn) settingsFor(channel int) *channelSettings {
	s, _ := c.settings.LoadOrCompute(channel, newChannelSettings)
	return s
}

// resetSettings restores the default settings mirror for every physical
// channel. Called on (re)connect; the defaults are re-applied to the device
// by Connect.
func (c *Conn) resetSettings() {
	c.settings = xsync.NewMapOf[int, *channelSettings]()
	for channel := 1; channel <= ChannelCount; channel++ {
		c.settings.Store(channel, newChannelSettings())
	}
}

// eachMirrorChannel calls fn for every physical channel addressed by the
// given selector: the channel itself, or all channels for selector 0.
func (c *Conn) eachMirrorChannel(channel int, fn func(s *channelSettings)) {
	if channel > 0 {
		fn(c.settingsFor(channel))
		return
	}
	for ch := 1; ch <= ChannelCount; ch++ {
		fn(c.settingsFor(ch))
	}
}

// scalingFor returns the scaling snapshot of the given channel based on its
// currently mirrored range selection.
func (c *Conn) scalingFor(channel int) wave.Scaling {
	idx := int(c.settingsFor(channel).rangeIndex.Load())
	if idx < 0 || idx >= len(c.adcToVolts) {
		idx = 0
	}

	return wave.Scaling{
		TimeBase:   MaxSampleRate,
		ADCToVolts: c.adcToVolts[idx],
		ADCToEU:    c.adcToEU[idx],
	}
}
