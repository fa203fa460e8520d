// Package cache 提供内部的内存缓存。
//
// 缓存同时受 TTL 和容量上限约束：过期条目惰性删除加周期清扫，
// 容量满时淘汰最久未访问的条目。Manager 按类别（Agent、任务、状态）
// 组织多个缓存实例。
package cache
