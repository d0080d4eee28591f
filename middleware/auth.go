package middleware

import (
	"github.com/gin-gonic/gin"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/utils"
)

type AuthMiddleware struct {
	cfg *config.Config
}

func NewAuthMiddleware(cfg *config.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// RequireStudent verifies the student token from the Authorization header
// or the access_token cookie and stores the identity on the context.
// Tokens are minted by the external account service; this backend only
// verifies them.
func (a *AuthMiddleware) RequireStudent() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := utils.ExtractTokenFromHeader(c.GetHeader("Authorization"))
		if tokenString == "" {
			if cookie, err := c.Cookie("access_token"); err == nil {
				tokenString = cookie
			}
		}
		if tokenString == "" {
			utils.RespondWithUnauthorized(c, "Authentication token is required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateJWT(tokenString, a.cfg.JWTSecret)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}
		if claims.StudentID == "" {
			utils.RespondWithUnauthorized(c, "Token carries no student identity")
			c.Abort()
			return
		}

		c.Set("student_id", claims.StudentID)
		c.Set("course", claims.Course)
		c.Set("claims", claims)
		c.Next()
	}
}

// GetStudentID returns the authenticated student id, or "" outside an
// authenticated request.
func GetStudentID(c *gin.Context) string {
	if v, exists := c.Get("student_id"); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// GetCourse returns the course claim of the authenticated student.
func GetCourse(c *gin.Context) string {
	if v, exists := c.Get("course"); exists {
		if course, ok := v.(string); ok {
			return course
		}
	}
	return ""
}
