// Package config 提供 aiorch 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 AIORCH）的顺序加载，
// 嵌套结构体的环境变量名由各级 env 标签以下划线拼接而成，
// 例如 AIORCH_ORCHESTRATOR_MAX_CONCURRENT、AIORCH_CACHE_REDIS_ADDR。
// 配置在启动时加载一次，Validate 失败即中止启动。
package config
