package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

type PayloadClaims struct {
	jwt.RegisteredClaims

	Type  string   `json:"typ"`
	Perms []string `json:"perms"`
}

const JwtAccessType = "access"

const CookieAccessKey = "helpdesk_auth_key"

// Permission names carried in the perms claim.
const (
	PermCreateAttachments = "CreateAttachments"
	PermDeleteAttachments = "DeleteAttachments"
	PermManageQuarantine  = "ManageQuarantine"
	PermManageSettings    = "ManageSettings"
)

func (v PayloadClaims) UserID() (uint, error) {
	id, err := strconv.ParseUint(v.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token subject: %v", err)
	}
	return uint(id), nil
}

func (v PayloadClaims) HasPerm(perm string) bool {
	return lo.Contains(v.Perms, perm)
}

func EncodeJwt(id string, sub string, perms []string, exp time.Time) (string, error) {
	tk := jwt.NewWithClaims(jwt.SigningMethodHS512, PayloadClaims{
		jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    viper.GetString("security.issuer"),
			ExpiresAt: jwt.NewNumericDate(exp),
			NotBefore: jwt.NewNumericDate(time.Now()),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        id,
		},
		JwtAccessType,
		perms,
	})

	return tk.SignedString([]byte(viper.GetString("security.secret")))
}

func DecodeJwt(str string) (PayloadClaims, error) {
	var claims PayloadClaims
	tk, err := jwt.ParseWithClaims(str, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(viper.GetString("security.secret")), nil
	})
	if err != nil {
		return claims, err
	}

	if data, ok := tk.Claims.(*PayloadClaims); ok {
		if data.Type != JwtAccessType {
			return claims, fmt.Errorf("unexpected token type: %s", data.Type)
		}
		return *data, nil
	} else {
		return claims, fmt.Errorf("unexpected token payload: not payload claims type")
	}
}
