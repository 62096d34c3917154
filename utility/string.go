package utility

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ToInt converts a string to an integer, returning def when s is empty or malformed
func ToInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

// IntAsPrice converts an amount in cents to a decimal string like 10234 to 102.34
func IntAsPrice(i int64) string {
	sign := ""
	if i < 0 {
		sign = "-"
		i = -i
	}
	return fmt.Sprintf("%s%d.%02d", sign, i/100, i%100)
}

func NewUUID() string {
	return uuid.New().String()
}

// Mask hides all but the last four characters of a document or key
func Mask(s string) string {
	if len(s) <= 4 {
		return s
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
