package video

import (
	"fmt"
	"strings"
)

// Profile describes how the frames of one codec must be filtered to recover
// the frames that were originally uploaded.
type Profile struct {
	// KeyframesOnly discards every frame that is not a keyframe
	KeyframesOnly bool `yaml:"keyframes_only"`
	// DuplicatePeriod and DuplicateOffset drop candidate ordinal k when
	// (k-DuplicateOffset) % DuplicatePeriod == 0. A zero period drops nothing.
	DuplicateOffset int `yaml:"duplicate_offset"`
	DuplicatePeriod int `yaml:"duplicate_period"`
	// Stride keeps only candidate ordinals divisible by Stride. 0 and 1 keep all.
	Stride int `yaml:"stride"`
}

// Protocol maps a codec name to its Profile.
type Protocol map[string]Profile

// DefaultProtocol returns the filters matching the platform's current
// re-encoding. The platform turns a 1 fps upload into a higher frame rate
// video, so the uploaded frames have to be picked back out.
func DefaultProtocol() Protocol {
	return Protocol{
		// Only keyframes carry uploaded frames, and keyframe 11 and every 17th
		// after it repeat their predecessor.
		"h264": {
			KeyframesOnly:   true,
			DuplicateOffset: 11,
			DuplicatePeriod: 17,
		},
		"vp9": {
			Stride: 6,
		},
	}
}

// Lookup returns the profile for codec.
func (p Protocol) Lookup(codec string) (Profile, error) {
	profile, ok := p[strings.ToLower(codec)]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnsupportedCodec, codec)
	}
	return profile, nil
}

// Merge returns a copy of p with the profiles of other added, replacing any of
// the same name.
func (p Protocol) Merge(other Protocol) Protocol {
	merged := make(Protocol, len(p)+len(other))
	for name, profile := range p {
		merged[name] = profile
	}
	for name, profile := range other {
		merged[strings.ToLower(name)] = profile
	}
	return merged
}

// filter decides frame by frame which decoded frames carry payload. Frames
// must be passed in decode order.
type filter struct {
	profile    Profile
	nullFrames bool
	candidates int
	accepted   int
}

func (f *filter) keep(frame *Frame) bool {
	if f.profile.KeyframesOnly && !frame.Keyframe {
		return false
	}
	k := f.candidates
	f.candidates++

	if p := f.profile.DuplicatePeriod; p > 0 && (k-f.profile.DuplicateOffset)%p == 0 {
		return false
	}
	if s := f.profile.Stride; s > 1 && k%s != 0 {
		return false
	}

	n := f.accepted
	f.accepted++
	// A null frame follows every data frame.
	return !f.nullFrames || n%2 == 0
}
