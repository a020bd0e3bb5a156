package pharmacy

import (
	"crypto/rand"
	"math/big"
	"strconv"
)

var otpRange = big.NewInt(900000)

// GenerateOTP returns a six digit delivery code in [100000, 999999].
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpRange)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(100000+n.Int64(), 10), nil
}
