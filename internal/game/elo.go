package game

import "math"

// KFactor is the standard ELO K used for battle rating updates.
const KFactor = 32

// ExpectedScore is the logistic win probability of a player rated ratingA
// against one rated ratingB.
func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingB-ratingA)/400))
}

// EloDeltas returns the rating change for the winner and loser of a battle.
// The winner's delta is positive, the loser's negative.
func EloDeltas(winnerElo, loserElo float64) (winnerDelta, loserDelta int) {
	expectedWin := ExpectedScore(winnerElo, loserElo)
	winnerDelta = int(math.Round(KFactor * (1 - expectedWin)))
	loserDelta = -int(math.Round(KFactor * expectedWin))
	return winnerDelta, loserDelta
}
