package service

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"time"
)

const (
	ticketTokenLayout  = "200601021504"
	ticketTokenLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	ticketTokenSuffix  = 4
)

var ticketTokenPattern = regexp.MustCompile(`^\d{12}[A-Z]{4}$`)

// TokenGenerator produces a ticket token candidate for the given instant.
type TokenGenerator func(now time.Time) (string, error)

// GenerateTicketToken returns the UTC minute stamp YYYYMMDDHHMM followed by
// four random uppercase letters, e.g. 202508180143KQZD.
func GenerateTicketToken(now time.Time) (string, error) {
	buf := make([]byte, 0, len(ticketTokenLayout)+ticketTokenSuffix)
	buf = now.UTC().AppendFormat(buf, ticketTokenLayout)
	max := big.NewInt(int64(len(ticketTokenLetters)))
	for i := 0; i < ticketTokenSuffix; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf = append(buf, ticketTokenLetters[n.Int64()])
	}
	return string(buf), nil
}

// ValidTicketToken reports whether token has the issued shape.
func ValidTicketToken(token string) bool {
	return ticketTokenPattern.MatchString(token)
}
