// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/substance-compliance/internal/i18n"
)

func I18nMiddleware(defaultLang string) gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := defaultLang

		// Handle cases like "nl-NL,nl;q=0.9,en;q=0.8"
		if header := c.GetHeader("Accept-Language"); header != "" {
			for _, candidate := range strings.Split(header, ",") {
				tag := strings.TrimSpace(strings.Split(candidate, ";")[0])
				base := strings.ToLower(strings.SplitN(strings.ReplaceAll(tag, "_", "-"), "-", 2)[0])
				if i18n.IsSupported(base) {
					lang = base
					break
				}
			}
		}

		// Set language in context
		c.Set("lang", lang)
		c.Next()
	}
}
