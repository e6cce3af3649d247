package predictor

import "math/rand/v2"

// maxSeed keeps generated seeds inside the range samplers accept.
const maxSeed = 1 << 31

// generateSeed returns seed unchanged when positive, otherwise a fresh one.
func generateSeed(seed int64) int64 {
	if seed > 0 {
		return seed
	}
	return rand.Int64N(maxSeed-1) + 1
}
