/*
Package server 在命令运行期间于后台提供 HTTP 端点。

NewHandler 暴露 /metrics（internal/metrics 的 Prometheus Registry）与
/healthz；Manager 负责非阻塞启动、可重复调用的优雅关闭以及异步错误
传播。监听 ":0" 时 Addr 返回实际端口。
*/
package server
