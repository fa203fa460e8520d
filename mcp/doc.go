// Package mcp 实现 Model Context Protocol 服务端。
//
// 协调器的能力以 MCP 工具形式暴露:create_swarm_agent、
// assign_swarm_task、get_swarm_status、analyze_with_nlp、
// coordinate_agents,以及 echo、system_info 两个工具类端点。
// 传输采用换行分隔的 JSON-RPC 2.0(stdio),方法包括 initialize、
// tools/list、tools/call,并支持按工具名直接分发。
//
// 只读工具(get_/list_/analyze_ 前缀及 _status/_info/_details/echo
// 后缀)的结果经 CachedToolHandler 透明缓存;写操作工具
// (create_/assign_/coordinate_ 等前缀)始终直通。
package mcp
