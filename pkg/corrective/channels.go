package corrective

import "fmt"

// ChannelPrefix is the name prefix of corrective blend-shape channels.
const ChannelPrefix = "Pose"

// ChannelName returns the blend-shape channel name for weight index i.
func ChannelName(i int) string {
	return fmt.Sprintf("%s%03d", ChannelPrefix, i)
}

// ValidateChannels checks that a mesh's corrective channels line up with the
// computed weights: same count, and channel i named ChannelName(i).
func ValidateChannels(weights []float64, channels []string) error {
	if len(weights) != len(channels) {
		return fmt.Errorf("%w: computed %d weights, mesh has %d channels",
			ErrChannelCountMismatch, len(weights), len(channels))
	}
	for i, name := range channels {
		if name != ChannelName(i) {
			return fmt.Errorf("%w: channel %d is %q, want %q",
				ErrChannelCountMismatch, i, name, ChannelName(i))
		}
	}
	return nil
}
