package lobby

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// CodeAlphabet is the set of characters lobby codes are drawn from. The
// easily confused pairs (0/O, 1/I, 5/S, 8/B) each appear only once, so a code
// read out loud or scribbled on paper survives the round trip.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234679"

// CodeLength is the fixed length of a lobby code.
const CodeLength = 5

// NewCode returns a random lobby code. It makes no uniqueness guarantee;
// checking against active codes is the registry's job.
func NewCode() (string, error) {
	var raw [CodeLength]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate lobby code: %w", err)
	}

	var buf [CodeLength]byte
	for i, b := range raw {
		// len(CodeAlphabet) divides 256, so the modulo introduces no bias.
		buf[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(buf[:]), nil
}

var ambiguousDigits = [...]struct{ from, to byte }{
	{'0', 'O'},
	{'1', 'I'},
	{'5', 'S'},
	{'8', 'B'},
}

// NormalizeCode uppercases a submitted code and maps a digit commonly mistyped
// for a letter back onto the code alphabet (0→O, 1→I, 5→S, 8→B). Only the
// first such digit is substituted, matching the behaviour clients have come to
// rely on.
func NormalizeCode(raw string) string {
	code := strings.ToUpper(raw)
	for i := 0; i < len(code); i++ {
		for _, sub := range ambiguousDigits {
			if code[i] == sub.from {
				return code[:i] + string(sub.to) + code[i+1:]
			}
		}
	}
	return code
}
