// Package handlers 实现蜂巢协调器的 HTTP 端点。
//
// 统一响应信封 {success, data, error, timestamp, request_id};
// 错误从 *types.Error 映射到 HTTP 状态码。
package handlers
