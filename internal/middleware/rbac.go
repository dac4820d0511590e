package middleware

import (
	"net/http"

	"github.com/examsmart/examsmart-backend/internal/model"
	"github.com/examsmart/examsmart-backend/internal/response"
	"github.com/gin-gonic/gin"
)

// RestrictTo allows the request through only when the caller's role is listed.
// It must run after RequireAuth.
func RestrictTo(roles ...model.UserRole) gin.HandlerFunc {
	denied := response.ErrForbidden
	if len(roles) == 1 {
		switch roles[0] {
		case model.RoleStudent:
			denied = response.ErrStudentAccessOnly
		case model.RoleProfessor:
			denied = response.ErrProfessorAccessOnly
		}
	}

	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, denied)
	}
}
