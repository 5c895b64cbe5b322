package web

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	eri18n "edgerisk/i18n"
)

// I18nMiddleware 解析 Accept-Language 头并把语言与 Localizer 放入上下文
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := parseAcceptLanguage(c.GetHeader("Accept-Language"))
		c.Set("language", lang)
		c.Set("localizer", eri18n.GetLocalizer(lang))
		c.Next()
	}
}

// parseAcceptLanguage 取优先级最高的语言
// 示例: "zh-CN,zh;q=0.9,en;q=0.8" -> "zh-CN"
func parseAcceptLanguage(acceptLang string) string {
	if acceptLang == "" {
		return eri18n.GetSystemLanguage()
	}

	first := strings.TrimSpace(strings.Split(acceptLang, ",")[0])
	if idx := strings.Index(first, ";"); idx != -1 {
		first = first[:idx]
	}
	return normalizeLanguage(strings.TrimSpace(first))
}

// normalizeLanguage 归一化到受支持的语言代码
func normalizeLanguage(lang string) string {
	lang = strings.ToLower(lang)
	switch {
	case strings.HasPrefix(lang, "en"):
		return "en-US"
	case strings.HasPrefix(lang, "zh"):
		return "zh-CN"
	default:
		return eri18n.GetSystemLanguage()
	}
}

// GetLocalizer 从上下文获取 Localizer
func GetLocalizer(c *gin.Context) *i18n.Localizer {
	if localizer, exists := c.Get("localizer"); exists {
		if l, ok := localizer.(*i18n.Localizer); ok {
			return l
		}
	}
	return eri18n.GetLocalizer(eri18n.GetSystemLanguage())
}

// GetLanguage 从上下文获取语言
func GetLanguage(c *gin.Context) string {
	if lang, exists := c.Get("language"); exists {
		if l, ok := lang.(string); ok {
			return l
		}
	}
	return eri18n.GetSystemLanguage()
}

// T 按请求语言翻译消息
func T(c *gin.Context, key string, data ...interface{}) string {
	return eri18n.TWithLang(GetLanguage(c), key, data...)
}
