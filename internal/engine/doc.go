// Package engine 實作辯論房間的回合與階段狀態機。
//
// 這個包只包含純函數：輸入目前的房間狀態與事件，直接修改房間並回傳結果。
// 所有函數在回傳錯誤時保證不修改房間。持久化與鎖定由 repository 負責。
package engine
