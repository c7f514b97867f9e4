// Package middleware 提供 gin 中間件：JWT 驗證與請求日誌。
//
// AuthMiddleware 將 token 中的 user_id 與 role 寫入 gin.Context 的 userID、userRole。
package middleware
