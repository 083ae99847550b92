// Package token generates the short shareable codes that identify a survey
// on the public submission endpoint.
package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet excludes easily confusable characters (0/O, 1/I/L, etc.) so the
// code survives being read aloud or typed from a phone screen.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const randomLen = 6

// Generate produces a unique survey token of the form "<companyID>-XXXXXX".
// exists reports whether a candidate is already taken; generation retries
// until a free candidate is found.
func Generate(companyID int, exists func(string) (bool, error)) (string, error) {
	for {
		random, err := randomPart(randomLen)
		if err != nil {
			return "", err
		}
		candidate := fmt.Sprintf("%d-%s", companyID, random)

		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
}

func randomPart(n int) (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = Alphabet[idx.Int64()]
	}
	return string(buf), nil
}
