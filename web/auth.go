package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"edgerisk/i18n"
)

// 单用户场景使用固定用户名
const authUsername = "admin"

var globalPasswordManager *PasswordManager

// SetPasswordManager 注入密码管理器
func SetPasswordManager(pm *PasswordManager) {
	globalPasswordManager = pm
}

// authMiddleware 认证中间件，未登录的请求一律拒绝
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sm := GetSessionManager()
		if sm == nil {
			respondError(c, http.StatusInternalServerError, "error.session_manager_not_initialized")
			c.Abort()
			return
		}

		session, exists := sm.GetSessionFromRequest(c.Request)
		if !exists || session == nil {
			respondError(c, http.StatusUnauthorized, "error.not_logged_in")
			c.Abort()
			return
		}

		c.Set("session", session)
		c.Set("username", session.Username)
		c.Next()
	}
}

// getAuthStatus 认证状态
// GET /api/auth/status
func getAuthStatus(c *gin.Context) {
	hasPassword := false
	if globalPasswordManager != nil {
		hasPassword, _ = globalPasswordManager.HasPassword(authUsername)
	}

	isAuthenticated := false
	if sm := GetSessionManager(); sm != nil {
		session, exists := sm.GetSessionFromRequest(c.Request)
		isAuthenticated = exists && session != nil
	}

	c.JSON(http.StatusOK, gin.H{
		"has_password":     hasPassword,
		"is_authenticated": isAuthenticated,
	})
}

// setPassword 设置密码，首次设置后自动登录
// POST /api/auth/password/set
func setPassword(c *gin.Context) {
	if globalPasswordManager == nil {
		respondError(c, http.StatusInternalServerError, "error.invalid_request")
		return
	}

	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_request")
		return
	}
	if len(req.Password) < 8 {
		respondError(c, http.StatusBadRequest, "error.password_too_short")
		return
	}

	if err := globalPasswordManager.SetPassword(authUsername, req.Password); err != nil {
		respondError(c, http.StatusInternalServerError, "error.invalid_request")
		return
	}

	sm := GetSessionManager()
	session, err := sm.CreateSession(authUsername, c.ClientIP(), c.GetHeader("User-Agent"))
	if err == nil {
		sm.SetSessionCookie(c.Writer, session.SessionID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": i18n.TWithLang(GetLanguage(c), "msg.password_set"),
	})
}

// verifyPassword 密码登录
// POST /api/auth/password/verify
func verifyPassword(c *gin.Context) {
	if globalPasswordManager == nil {
		respondError(c, http.StatusInternalServerError, "error.invalid_request")
		return
	}

	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "error.invalid_request")
		return
	}

	ok, err := globalPasswordManager.VerifyPassword(authUsername, req.Password)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.invalid_request")
		return
	}
	if !ok {
		respondError(c, http.StatusUnauthorized, "error.wrong_password")
		return
	}

	sm := GetSessionManager()
	session, err := sm.CreateSession(authUsername, c.ClientIP(), c.GetHeader("User-Agent"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "error.invalid_request")
		return
	}
	sm.SetSessionCookie(c.Writer, session.SessionID)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// logout 退出登录
// POST /api/auth/logout
func logout(c *gin.Context) {
	sm := GetSessionManager()
	if session, exists := sm.GetSessionFromRequest(c.Request); exists && session != nil {
		sm.DeleteSession(session.SessionID)
	}
	sm.ClearSessionCookie(c.Writer)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": i18n.TWithLang(GetLanguage(c), "msg.logout_success"),
	})
}
