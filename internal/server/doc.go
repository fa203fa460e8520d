// Package server 提供 HTTP 服务器的生命周期管理。
//
// Manager 封装 net/http.Server,提供非阻塞启动、错误通道与优雅关闭,
// 供 API 服务与指标服务复用同一套启停逻辑。
package server
