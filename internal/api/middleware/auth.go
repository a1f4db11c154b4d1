package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// 予約者と冪等性キーを運ぶヘッダー
const (
	HeaderRequester      = "X-Requester"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// コンテキストのキー
const (
	ContextOrganizerID = "organizer_id"
	ContextRole        = "role"
)

// ロール
const (
	RoleOrganizer = "organizer"
	RoleAdmin     = "admin"
)

// Claims は主催者トークンのクレーム
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuth はHS256のBearerトークンを検証し、subject とロールをコンテキストに載せる。
// roles が指定されていれば、そのいずれかのロールを要求する。secret が空なら認証しない
func JWTAuth(secret string, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Bearerトークンが必要です")
			}

			claims := &Claims{}
			tok, err := jwt.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims,
				func(t *jwt.Token) (interface{}, error) { return []byte(secret), nil },
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			)
			if err != nil || !tok.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "トークンが無効です")
			}
			if len(roles) > 0 && !contains(roles, claims.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "権限がありません")
			}

			c.Set(ContextOrganizerID, claims.Subject)
			c.Set(ContextRole, claims.Role)
			return next(c)
		}
	}
}

// OrganizerID はコンテキストの主催者IDを返す。認証なしの場合は空
func OrganizerID(c echo.Context) string {
	id, _ := c.Get(ContextOrganizerID).(string)
	return id
}

// IssueToken は主催者トークンを発行する。テストと管理CLI用
func IssueToken(secret, subject, role string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Role: role, RegisteredClaims: claims})
	return tok.SignedString([]byte(secret))
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
