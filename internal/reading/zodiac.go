package reading

import (
	"fmt"
	"time"
)

type zodiacRange struct {
	sign  string
	month time.Month
	day   int // first day of the sign within its starting month
}

// Ranges are ordered by start date within the year.
var zodiacRanges = []zodiacRange{
	{"Capricorn", time.January, 1},
	{"Aquarius", time.January, 20},
	{"Pisces", time.February, 19},
	{"Aries", time.March, 21},
	{"Taurus", time.April, 20},
	{"Gemini", time.May, 21},
	{"Cancer", time.June, 21},
	{"Leo", time.July, 23},
	{"Virgo", time.August, 23},
	{"Libra", time.September, 23},
	{"Scorpio", time.October, 23},
	{"Sagittarius", time.November, 22},
	{"Capricorn", time.December, 22},
}

// ZodiacSign returns the western zodiac sign for a YYYY-MM-DD birth date.
func ZodiacSign(birthDate string) (string, error) {
	t, err := time.Parse("2006-01-02", birthDate)
	if err != nil {
		return "", fmt.Errorf("parse birth date: %w", err)
	}

	sign := zodiacRanges[0].sign
	for _, r := range zodiacRanges {
		if t.Month() > r.month || (t.Month() == r.month && t.Day() >= r.day) {
			sign = r.sign
		}
	}
	return sign, nil
}
