// ABOUTME: Audio output interface definition
// ABOUTME: Common interface for backends that drive a NodeManager from a device
package output

import "github.com/4dsound/vban-go/pkg/audio"

// Output is a playback device that pulls audio from a NodeManager. The
// backend invokes NodeManager.ProcessCallback once per period of
// NodeManager.BufferSize frames.
type Output interface {
	// Open initializes the device and starts pulling from the manager.
	Open(channels int, manager *audio.NodeManager) error

	// Close stops the device and releases its resources.
	Close() error
}

// applyVolume scales a float buffer in place with clipping protection.
func applyVolume(buf []float32, volume int, muted bool) {
	multiplier := float32(getVolumeMultiplier(volume, muted))
	if multiplier == 1.0 {
		return
	}
	for i, v := range buf {
		scaled := v * multiplier
		if scaled > 1.0 {
			scaled = 1.0
		} else if scaled < -1.0 {
			scaled = -1.0
		}
		buf[i] = scaled
	}
}

// getVolumeMultiplier calculates the linear volume multiplier.
func getVolumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}
