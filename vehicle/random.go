package vehicle

import "math/rand/v2"

// NewStream returns the private random stream of one vehicle. The stream
// depends only on the global seed and the vehicle's own seed and id, so no
// two vehicles share state and thread interleaving cannot change a draw.
func NewStream(globalSeed, vehicleSeed, id uint64) *rand.Rand {
	return rand.New(rand.NewPCG(splitmix(globalSeed^splitmix(vehicleSeed)), splitmix(id+0x9e3779b97f4a7c15)))
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
