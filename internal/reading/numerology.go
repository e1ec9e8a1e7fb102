package reading

import (
	"fmt"
	"time"
)

// LifePathNumber reduces a birth date to its numerological life path
// number. Digits of year, month, and day are summed and reduced until a
// single digit remains, except that the master numbers 11, 22, and 33 are
// kept unreduced.
func LifePathNumber(birthDate string) (int, error) {
	t, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return 0, fmt.Errorf("parse birth date: %w", err)
	}

	sum := digitSum(t.Year()) + digitSum(int(t.Month())) + digitSum(t.Day())
	for sum > 9 && !masterNumber(sum) {
		sum = digitSum(sum)
	}
	return sum, nil
}

func digitSum(n int) int {
	sum := 0
	for n > 0 {
		sum += n % 10
		n /= 10
	}
	return sum
}

func masterNumber(n int) bool {
	return n == 11 || n == 22 || n == 33
}
