package lobby

import (
	"fmt"
	mathrand "math/rand"
	"strconv"
)

// codeAttempts bounds the retry budget when a generated code collides
// with an existing game.
const codeAttempts = 10

// randomCode picks a 6-digit numeric join code in [100000, 999999].
func randomCode(r *mathrand.Rand) string {
	return strconv.Itoa(100000 + r.Intn(900000))
}

// claimCode draws codes from gen until claim accepts one or the
// attempt budget runs out. claim reports taken=true on a collision.
func claimCode(attempts int, gen func() string, claim func(code string) (taken bool, err error)) (string, error) {
	for i := 0; i < attempts; i++ {
		code := gen()
		taken, err := claim(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: gave up after %d attempts", ErrCodeGenerationExhausted, attempts)
}
