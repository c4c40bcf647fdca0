// @title PeopleGrid 后端 API
// @version 1.0
// @description PeopleGrid 社交平台的后端服务器。

// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import "peoplegrid_backend/cmd"

func main() {
	cmd.Execute()
}
