package utility

// Contains reports whether s is an element of array; an empty array contains nothing
func Contains(array []string, s string) bool {
	for _, v := range array {
		if v == s {
			return true
		}
	}
	return false
}
