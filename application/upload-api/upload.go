package main

import (
	"flag"
	"fmt"

	"github.com/yanshicheng/coop-nova/application/upload-api/internal/config"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/handler"
	"github.com/yanshicheng/coop-nova/application/upload-api/internal/svc"
	"github.com/yanshicheng/coop-nova/common/handler/errorx"
	"github.com/yanshicheng/coop-nova/common/handler/okx"
	"github.com/yanshicheng/coop-nova/common/vars"
	middlewarex "github.com/yanshicheng/coop-nova/common/middleware"
	"github.com/zeromicro/go-zero/rest/httpx"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/rest"
)

var configFile = flag.String("f", "etc/upload-api.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c, conf.UseEnv())

	server := rest.MustNewServer(c.RestConf)
	defer server.Stop()

	// 自定义全局中间件
	server.Use(middlewarex.PanicRecoveryMiddleware)

	// 自定义错误
	httpx.SetErrorHandler(errorx.ErrHandler)
	httpx.SetOkHandler(okx.OkHandler)

	ctx := svc.NewServiceContext(c)
	handler.RegisterHandlers(server, ctx)

	// 启动进度推送与会话清理，优雅退出时等待合并任务结束
	ctx.Start()
	defer ctx.Stop()

	fmt.Printf("%s %s starting server at %s:%d...\n", vars.ProjectName, vars.ProjectVer, c.Host, c.Port)
	server.Start()
}
