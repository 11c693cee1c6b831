/*
包 database 提供基于 GORM 的连接池管理，供 URL 缓存的 SQL 后端使用。

Open 按驱动名选择方言（sqlite 走 modernc 纯 Go 驱动，postgres 走 pgx，
mysql 走 go-sql-driver）并返回 PoolManager：

  - DB / Ping / Stats / Close：生命周期
  - WithTransaction / WithTransactionRetry：事务执行，死锁、序列化失败、
    SQLite busy 等瞬时错误按指数退避重试
  - HealthCheckInterval > 0 时后台定时探活，Close 后停止

SQLite 连接池固定为单连接。
*/
package database
