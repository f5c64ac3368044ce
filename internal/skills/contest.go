// Package skills turns opposing skill ranks into combat multipliers.
package skills

import (
	"fmt"
	"math"
)

// Spread controls how quickly the contest saturates. A rank gap of Spread
// moves the multiplier about halfway from 1 towards its bound.
const Spread = 4.0

// Contest returns the damage multiplier for an attacker of rank a against a
// defender of rank d. It is 1 for equal ranks, approaches 2 as the attacker
// pulls ahead and approaches 0 as the defender does.
func Contest(a, d float64) (float64, error) {
	if math.IsNaN(a) || math.IsNaN(d) {
		return 0, fmt.Errorf("contest: rank is NaN (attacker %v, defender %v)", a, d)
	}
	return 2 / (1 + math.Exp(-(a-d)/Spread)), nil
}
