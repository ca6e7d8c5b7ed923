package utils

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"pbs/src/types"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var jwtKey = []byte(os.Getenv("JWT_SECRET"))

func GenerateJWT(email string, id uint, role string) (string, error) {
	claims := types.Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(int(id)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ReceiptObjectName builds a collision-resistant stored name for an uploaded
// receipt, keeping the original extension.
func ReceiptObjectName(original string) string {
	ext := strings.ToLower(path.Ext(original))
	return fmt.Sprintf("receipt-%d-%s%s", time.Now().UnixMilli(), uuid.NewString(), ext)
}

func IsProd() bool {
	return os.Getenv("API_ENV") == "production"
}
