package utils

// SharedPrefixLen returns the number of leading bytes a and b have in common.
func SharedPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var i int
	for ; i < n; i++ {
		if a[i] != b[i] {
			break
		}
	}
	return i
}
