package frame

import "math/bits"

// Resolution is the scene-capture target size, also used for output textures.
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// NextPow2 returns 2^floor(log2(2*max(v,1)-1)), i.e. the smallest power of
// two that is >= v. Powers of two map to themselves.
func NextPow2(v int) int {
	if v < 1 {
		v = 1
	}
	return 1 << (bits.Len(uint(2*v-1)) - 1)
}

// Coerce rounds both dimensions up to a power of two independently.
func (r Resolution) Coerce() Resolution {
	return Resolution{Width: NextPow2(r.Width), Height: NextPow2(r.Height)}
}

// Pixels returns Width*Height.
func (r Resolution) Pixels() int {
	return r.Width * r.Height
}
