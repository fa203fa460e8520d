// Package api 定义 HTTP 边界的请求/响应载荷与解析。
//
// 载荷只做编解码与 id/时长的解析,语义校验在协调器门面完成。
package api
