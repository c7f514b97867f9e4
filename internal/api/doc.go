// Package api 註冊辯論房間的 HTTP 與 WebSocket 路由。
//
// 處理器位於 handlers 子套件，只負責解析請求、呼叫 RoomService，
// 並把服務層的錯誤轉成統一的 {"error", "code"} 回應。
package api
