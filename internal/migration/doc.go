// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理结果日志（agent_results 表）的 Schema 迁移，
支持 PostgreSQL 与 MySQL，基于 golang-migrate 实现。

# 概述

本包通过 embed.FS 内嵌各数据库方言的 SQL 迁移文件，结合
golang-migrate 引擎实现版本化的 Schema 变更管理。SQLite 的表结构
由 GORM AutoMigrate 创建，ParseDatabaseType 对其返回 ErrAutoMigrated。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Force/
    Version/Status/Info/Close。
  - DefaultMigrator：Migrator 的默认实现，封装 golang-migrate 实例。
  - Config：迁移配置，包含数据库类型、连接 URL、迁移表名与锁超时。
  - CLI：为 aiorch migrate 子命令提供格式化输出。

# 主要能力

  - 工厂函数：NewMigratorFromConfig / NewMigratorFromDatabaseConfig /
    NewMigratorFromURL。
  - 辅助工具：ParseDatabaseType 解析类型字符串，BuildDatabaseURL
    按方言拼接连接 URL。
*/
package migration
