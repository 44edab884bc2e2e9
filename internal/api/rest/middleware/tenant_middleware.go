package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/posly/settlement-service/pkg/logger"
)

const (
	// Заголовки, проставляемые шлюзом аутентификации перед этим сервисом
	HeaderBusinessID = "X-Business-ID"
	HeaderEmployeeID = "X-Employee-ID"

	// Ключи контекста Gin
	ContextBusinessID = "businessID"
	ContextEmployeeID = "employeeID"
)

// TenantMiddleware извлекает доверенный контекст арендатора из заголовков.
// Аутентификацию выполняет внешний шлюз; сервис только требует, чтобы
// businessID присутствовал и был валидным UUID.
func TenantMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawBusinessID := c.GetHeader(HeaderBusinessID)
		if rawBusinessID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing business context"})
			return
		}

		businessID, err := uuid.Parse(rawBusinessID)
		if err != nil {
			log.Warn("Invalid business ID header: %s", rawBusinessID)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid business context"})
			return
		}
		c.Set(ContextBusinessID, businessID)

		if rawEmployeeID := c.GetHeader(HeaderEmployeeID); rawEmployeeID != "" {
			employeeID, err := uuid.Parse(rawEmployeeID)
			if err != nil {
				log.Warn("Invalid employee ID header: %s", rawEmployeeID)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid employee context"})
				return
			}
			c.Set(ContextEmployeeID, employeeID)
		}

		c.Next()
	}
}

// BusinessID возвращает идентификатор бизнеса из контекста запроса
func BusinessID(c *gin.Context) uuid.UUID {
	return c.MustGet(ContextBusinessID).(uuid.UUID)
}

// EmployeeID возвращает идентификатор сотрудника, если он был передан
func EmployeeID(c *gin.Context) *uuid.UUID {
	v, exists := c.Get(ContextEmployeeID)
	if !exists {
		return nil
	}
	id := v.(uuid.UUID)
	return &id
}
