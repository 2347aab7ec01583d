package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// verificationCodeSpace は6桁の認証コードの値域。
var verificationCodeSpace = big.NewInt(1_000_000)

// CodeGenerator は認証コードを生成する関数型。テストで差し替える。
type CodeGenerator func() (string, error)

// GenerateVerificationCode は一様乱数による6桁の数字コードを返す。
func GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, verificationCodeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
