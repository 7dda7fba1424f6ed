package pbft

// QuorumSize returns the minimum number of matching replica votes required
// for a validator set of size n:
//
//	n <= 1     0 (solo mode)
//	n in 2,3   1
//	n = 3f+1   2f
//	n = 3f+2   2f+1
//	n = 3f+3   2f+1
//
// where f = (n-1)/3.
func QuorumSize(n int) int {
	switch {
	case n <= 1:
		return 0
	case n <= 3:
		return 1
	}
	f := (n - 1) / 3
	if n == 3*f+1 {
		return 2 * f
	}
	return 2*f + 1
}

// MaxFaulty returns the number of faulty replicas a set of n tolerates.
func MaxFaulty(n int) int {
	if n <= 0 {
		return 0
	}
	return (n - 1) / 3
}

// hasPrepareQuorum is the threshold used by the prepare and commit phases.
func hasPrepareQuorum(votes, n int) bool {
	return votes >= QuorumSize(n)
}

// hasNewViewQuorum is the threshold a new view must carry. It is strictly
// greater than the prepare threshold.
func hasNewViewQuorum(distinct, n int) bool {
	return distinct > QuorumSize(n)
}

// hasWeakQuorum reports whether votes include at least one correct replica.
func hasWeakQuorum(votes, n int) bool {
	return votes >= MaxFaulty(n)+1
}
