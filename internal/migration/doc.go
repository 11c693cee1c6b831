/*
包 migration 管理 URL 缓存 SQL 后端的表结构，基于 golang-migrate。

各方言（postgres / mysql / sqlite）的迁移文件通过 embed.FS 内嵌在
migrations/<dialect>/ 下，文件名形如 000001_create_url_cache.up.sql。
sqlite 使用 modernc 纯 Go 驱动，无需 cgo。

  - DefaultMigrator：Up/Down/DownAll/Steps/Goto/Force/Version/Status/Info
  - NewMigratorFromConfig / UpFromConfig：从 config.SQLConfig 创建并执行
  - CLI：`tutorflow migrate <command>` 的终端输出
*/
package migration
