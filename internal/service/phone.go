package service

// phoneMatchDigits is how many trailing digits two phone numbers must share
// to be treated as the same subscriber. It tolerates country-code and
// formatting differences such as "0712 345 678" vs "+254712345678".
const phoneMatchDigits = 6

func digitsOnly(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func phonesMatch(a, b string) bool {
	a, b = digitsOnly(a), digitsOnly(b)
	if len(a) < phoneMatchDigits || len(b) < phoneMatchDigits {
		return false
	}
	return a[len(a)-phoneMatchDigits:] == b[len(b)-phoneMatchDigits:]
}
