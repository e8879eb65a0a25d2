package vars

// 角色编码
const (
	RoleAdmin = "admin"
)

// 项目版本信息
const (
	ProjectName = "CoopNova"
	ProjectVer  = "v0.1.0"
)
